// internal/models/branch.go
package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaritalStatus 婚姻状态
type MaritalStatus string

const (
	MaritalSingle   MaritalStatus = "Single"
	MaritalMarried  MaritalStatus = "Married"
	MaritalDivorced MaritalStatus = "Divorced"
	MaritalWidowed  MaritalStatus = "Widowed"
)

// ParseMaritalStatus accepts the display form as well as the lowercase
// family_status values sent by relay producers ("married", "single", ...).
func ParseMaritalStatus(s string) (MaritalStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return MaritalSingle, nil
	case "married":
		return MaritalMarried, nil
	case "divorced":
		return MaritalDivorced, nil
	case "widowed":
		return MaritalWidowed, nil
	default:
		return "", fmt.Errorf("unknown marital status %q", s)
	}
}

// UnmarshalJSON normalizes any accepted spelling to the display form.
func (m *MaritalStatus) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("marital status: %w", err)
	}
	status, err := ParseMaritalStatus(s)
	if err != nil {
		return err
	}
	*m = status
	return nil
}

// UnmarshalYAML 与 UnmarshalJSON 相同的规范化
func (m *MaritalStatus) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("marital status: %w", err)
	}
	status, err := ParseMaritalStatus(s)
	if err != nil {
		return err
	}
	*m = status
	return nil
}

const (
	HealthHealthy = "healthy"

	EmploymentEmployed   = "employed"
	EmploymentUnemployed = "unemployed"
)

// LifeState is the financial and life state carried by one branch.
type LifeState struct {
	Name          string        `json:"name"`
	Money         int64         `json:"money"`
	MonthlyWage   int64         `json:"monthly_wage"`
	CurrentLoan   int64         `json:"current_loan"`
	MaritalStatus MaritalStatus `json:"marital_status"`
	ChildCount    int           `json:"child_count"`
	HealthStatus  string        `json:"health_status"`
	Employment    string        `json:"employment"`
	History       []string      `json:"history"` // events applied to this branch, oldest first
}

// Clone returns a deep copy; History is never shared between branches.
func (s LifeState) Clone() LifeState {
	out := s
	if s.History != nil {
		out.History = append([]string(nil), s.History...)
	}
	return out
}

// Equal compares two states field by field, History included.
func (s LifeState) Equal(o LifeState) bool {
	if s.Name != o.Name || s.Money != o.Money || s.MonthlyWage != o.MonthlyWage ||
		s.CurrentLoan != o.CurrentLoan || s.MaritalStatus != o.MaritalStatus ||
		s.ChildCount != o.ChildCount || s.HealthStatus != o.HealthStatus ||
		s.Employment != o.Employment || len(s.History) != len(o.History) {
		return false
	}
	for i := range s.History {
		if s.History[i] != o.History[i] {
			return false
		}
	}
	return true
}

// Branch 表示一条并行的时间线
type Branch struct {
	ID           int       `json:"id"`
	Slot         int       `json:"slot"`          // vertical ordering, display only
	StartOffset  float64   `json:"start_offset"`  // glide start
	TargetOffset float64   `json:"target_offset"` // glide end, used for allocation
	CreatedAt    float64   `json:"created_at"`    // cursor at creation
	Avatar       int       `json:"avatar"`        // display handle resolved by the renderer
	State        LifeState `json:"state"`
}

// BranchView is a branch as seen by renderers, with its offset resolved
// against the cursor of the snapshot it belongs to.
type BranchView struct {
	Branch
	CurrentOffset float64 `json:"current_offset"`
	Progress      float64 `json:"progress"`
}
