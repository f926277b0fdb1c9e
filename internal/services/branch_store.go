// internal/services/branch_store.go
package services

import (
	"math"
	"sort"

	"github.com/Corphon/LifeBranches/internal/config"
	apperrors "github.com/Corphon/LifeBranches/internal/errors"
	"github.com/Corphon/LifeBranches/internal/models"
)

// DefaultBranchName labels seed branches when no onboarding name is known.
const DefaultBranchName = "You"

// SplitResult pairs the two children produced from one parent.
type SplitResult struct {
	KeptID    int `json:"kept_id"`    // child that retained the parent id
	SiblingID int `json:"sibling_id"` // road not taken
}

// BranchStore owns the live branches of one simulation. It is not safe for
// concurrent use; the Simulation serializes access.
type BranchStore struct {
	branches []*models.Branch // kept in slot order

	spacing    float64
	minSpacing float64
	transition float64
	profile    *models.Profile
	nextAvatar int
}

// NewBranchStore creates an empty store using the geometry in cfg.
func NewBranchStore(cfg *config.SimulationConfig) *BranchStore {
	return &BranchStore{
		spacing:    cfg.BranchSpacing,
		minSpacing: cfg.MinSpacing,
		transition: cfg.TransitionDistance,
		profile:    cfg.Profile,
	}
}

// SetProfile changes the onboarding input used by the next Seed or Reset.
func (s *BranchStore) SetProfile(p *models.Profile) {
	s.profile = p
}

// Seed discards every branch and creates ids 0 and 1 symmetrically around
// the center, each with a freshly computed initial state.
func (s *BranchStore) Seed(cursor float64) {
	s.branches = s.branches[:0]
	s.branches = append(s.branches,
		s.newSeed(0, -s.spacing/2, cursor, s.allocAvatar()),
		s.newSeed(1, s.spacing/2, cursor, s.allocAvatar()),
	)
	s.recomputeSlots()
}

// Reset collapses the store back to the two seeds at cursor. Seeds reuse the
// avatars of branches 0 and 1; every other avatar is returned for release.
func (s *BranchStore) Reset(cursor float64) []int {
	avatars := map[int]int{}
	var released []int
	for _, b := range s.branches {
		if b.ID == 0 || b.ID == 1 {
			avatars[b.ID] = b.Avatar
			continue
		}
		released = append(released, b.Avatar)
	}

	avatar := func(id int) int {
		if a, ok := avatars[id]; ok {
			return a
		}
		return s.allocAvatar()
	}

	s.branches = []*models.Branch{
		s.newSeed(0, -s.spacing/2, cursor, avatar(0)),
		s.newSeed(1, s.spacing/2, cursor, avatar(1)),
	}
	s.recomputeSlots()
	return released
}

func (s *BranchStore) newSeed(id int, offset, cursor float64, avatar int) *models.Branch {
	return &models.Branch{
		ID:           id,
		StartOffset:  offset,
		TargetOffset: offset,
		CreatedAt:    cursor,
		Avatar:       avatar,
		State:        InitialState(s.profile),
	}
}

func (s *BranchStore) allocAvatar() int {
	a := s.nextAvatar
	s.nextAvatar++
	return a
}

// SplitAll replaces every live branch with two children.
func (s *BranchStore) SplitAll(cursor float64) []SplitResult {
	parents := append([]*models.Branch(nil), s.branches...)
	used := s.usedIDs()

	var placed []float64
	next := make([]*models.Branch, 0, len(parents)*2)
	results := make([]SplitResult, 0, len(parents))
	for _, p := range parents {
		kept, sibling := s.splitBranch(p, cursor, used, &placed)
		next = append(next, kept, sibling)
		results = append(results, SplitResult{KeptID: kept.ID, SiblingID: sibling.ID})
	}

	s.branches = next
	s.recomputeSlots()
	return results
}

// SplitOne splits a single branch and freezes every other branch at its
// current offset. It returns the ids of the two children; KeptID carries the
// parent's id and is the child that pending event state should be applied to.
func (s *BranchStore) SplitOne(id int, cursor float64) (SplitResult, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return SplitResult{}, apperrors.NewNotFoundError("split branch", apperrors.ErrBranchNotFound)
	}

	var placed []float64
	for i, b := range s.branches {
		if i == idx {
			continue
		}
		current := s.CurrentOffset(b, cursor)
		b.StartOffset = current
		b.TargetOffset = current
		b.CreatedAt = cursor
		placed = append(placed, current)
	}

	parent := s.branches[idx]
	kept, sibling := s.splitBranch(parent, cursor, s.usedIDs(), &placed)

	next := make([]*models.Branch, 0, len(s.branches)+1)
	next = append(next, s.branches[:idx]...)
	next = append(next, kept, sibling)
	next = append(next, s.branches[idx+1:]...)
	s.branches = next
	s.recomputeSlots()

	return SplitResult{KeptID: kept.ID, SiblingID: sibling.ID}, nil
}

// splitBranch builds the two children of p. Both copy p's state exactly and
// glide from p's current offset towards allocator-approved targets.
func (s *BranchStore) splitBranch(p *models.Branch, cursor float64, used map[int]bool, placed *[]float64) (*models.Branch, *models.Branch) {
	current := s.CurrentOffset(p, cursor)

	upper := FindFreeSlot(current-s.spacing/2, *placed, s.minSpacing)
	*placed = append(*placed, upper)
	lower := FindFreeSlot(current+s.spacing/2, *placed, s.minSpacing)
	*placed = append(*placed, lower)

	siblingID := p.ID + 1
	for used[siblingID] {
		siblingID++
	}
	used[siblingID] = true

	kept := &models.Branch{
		ID:           p.ID,
		StartOffset:  current,
		TargetOffset: upper,
		CreatedAt:    cursor,
		Avatar:       p.Avatar,
		State:        p.State.Clone(),
	}
	sibling := &models.Branch{
		ID:           siblingID,
		StartOffset:  current,
		TargetOffset: lower,
		CreatedAt:    cursor,
		Avatar:       s.allocAvatar(),
		State:        p.State.Clone(),
	}
	return kept, sibling
}

// AddMonthlyWage credits one month of wage to every branch.
func (s *BranchStore) AddMonthlyWage() {
	for _, b := range s.branches {
		b.State.Money += b.State.MonthlyWage
	}
}

// Progress returns how far b has glided towards its target at cursor, in [0, 1].
func (s *BranchStore) Progress(b *models.Branch, cursor float64) float64 {
	if s.transition <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, (b.CreatedAt-cursor)/s.transition))
}

// CurrentOffset interpolates b's vertical offset at cursor. The cursor
// decreases over time, so the distance travelled is CreatedAt - cursor.
func (s *BranchStore) CurrentOffset(b *models.Branch, cursor float64) float64 {
	p := s.Progress(b, cursor)
	return b.StartOffset + (b.TargetOffset-b.StartOffset)*p
}

// Get returns the live branch with id.
func (s *BranchStore) Get(id int) (*models.Branch, bool) {
	if idx := s.indexOf(id); idx >= 0 {
		return s.branches[idx], true
	}
	return nil, false
}

// Exists reports whether a branch with id is live.
func (s *BranchStore) Exists(id int) bool {
	return s.indexOf(id) >= 0
}

// Len returns the number of live branches.
func (s *BranchStore) Len() int {
	return len(s.branches)
}

// IDs returns live branch ids in slot order.
func (s *BranchStore) IDs() []int {
	ids := make([]int, len(s.branches))
	for i, b := range s.branches {
		ids[i] = b.ID
	}
	return ids
}

// Views copies every branch with its offset resolved at cursor.
func (s *BranchStore) Views(cursor float64) []models.BranchView {
	views := make([]models.BranchView, len(s.branches))
	for i, b := range s.branches {
		cp := *b
		cp.State = b.State.Clone()
		views[i] = models.BranchView{
			Branch:        cp,
			CurrentOffset: s.CurrentOffset(b, cursor),
			Progress:      s.Progress(b, cursor),
		}
	}
	return views
}

func (s *BranchStore) indexOf(id int) int {
	for i, b := range s.branches {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func (s *BranchStore) usedIDs() map[int]bool {
	used := make(map[int]bool, len(s.branches)*2)
	for _, b := range s.branches {
		used[b.ID] = true
	}
	return used
}

// recomputeSlots orders branches top to bottom by target offset, ties by id.
func (s *BranchStore) recomputeSlots() {
	sort.SliceStable(s.branches, func(i, j int) bool {
		a, b := s.branches[i], s.branches[j]
		if a.TargetOffset != b.TargetOffset {
			return a.TargetOffset < b.TargetOffset
		}
		return a.ID < b.ID
	})
	for i, b := range s.branches {
		b.Slot = i
	}
}

var educationMultipliers = map[string]float64{
	"high_school": 1.0,
	"bachelor":    1.3,
	"master":      1.6,
	"doctorate":   2.0,
}

// InitialState derives a branch's starting finances from onboarding input.
// Without a profile it returns fixed defaults. The result is deterministic.
func InitialState(p *models.Profile) models.LifeState {
	if p == nil {
		return models.LifeState{
			Name:          DefaultBranchName,
			Money:         50000,
			MonthlyWage:   3500,
			MaritalStatus: models.MaritalSingle,
			HealthStatus:  models.HealthHealthy,
			Employment:    models.EmploymentEmployed,
		}
	}

	edu, ok := educationMultipliers[p.Education]
	if !ok {
		edu = 1.0
	}
	experience := 1 + math.Min(float64(p.CareerLength)*0.05, 0.5)
	age := 1.0
	switch {
	case p.Age >= 35 && p.Age <= 50:
		age = 1.2
	case p.Age < 25:
		age = 0.8
	}

	annual := math.Floor(30000 * edu * experience * age)

	status, err := models.ParseMaritalStatus(p.FamilyStatus)
	if err != nil {
		status = models.MaritalSingle
	}
	name := p.Name
	if name == "" {
		name = DefaultBranchName
	}

	return models.LifeState{
		Name:          name,
		Money:         int64(math.Floor(annual * 0.15 * float64(p.CareerLength))),
		MonthlyWage:   int64(math.Floor(annual / 12)),
		MaritalStatus: status,
		ChildCount:    max(p.Children, 0),
		HealthStatus:  models.HealthHealthy,
		Employment:    models.EmploymentEmployed,
	}
}
