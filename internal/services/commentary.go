// internal/services/commentary.go
package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/LifeBranches/internal/llm"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/utils"
)

const (
	lowIncomeThreshold = 40000
	maxRecentComments  = 50
	commentaryTimeout  = 15 * time.Second
	commentaryTokens   = 200
)

var partnerNames = []string{
	"Alice", "Bob", "Charlie", "Diana", "Ethan", "Fiona",
	"George", "Hannah", "Ivan", "Julia", "Kevin", "Laura",
	"Marco", "Nina", "Oscar", "Paula", "Quentin", "Rita",
	"Sam", "Tina", "Victor", "Wendy", "Yuki", "Zara",
	"Giulia", "Luca", "Sofia", "Francesco", "Chiara", "Matteo",
	"Alessia", "Davide", "Martina", "Nicola", "Serena", "Giorgio",
	"Elena", "Alberto", "Claudia", "Taro", "Hanako", "Yuto",
	"Sakura", "Haruto", "Hina", "Ren", "Aoi", "Souta",
	"Yui", "Kaito", "Mio",
}

const commentarySystemPrompt = `You are a sports commentator that comments on events in peoples' lives.

Guidelines:
- Use excited language in a way that an announcer would hype up the crowd
- Reference past events to build narrative tension and consistency
- Keep it punchy and dramatic, 2-3 sentences MAX
- Focus on the drama and stakes of the situation
- Maintain a consistent voice and style across all your commentaries`

// RiskComment is one candidate remark about a world's latest event.
type RiskComment struct {
	Text     string `json:"text"`
	Severity int    `json:"severity"`
	Name     string `json:"name"`
	BranchID int    `json:"branch_id"`
	Event    string `json:"event"`
}

// LatestEvent returns the world's most recent event, or "" when the last
// trajectory entry records that nothing happened.
func LatestEvent(w models.ExportWorld) string {
	if len(w.TrajectoryEvents) == 0 {
		return ""
	}
	last := w.TrajectoryEvents[len(w.TrajectoryEvents)-1]
	for _, suffix := range []string{"_not_chosen", "_not_happened", "_skipped"} {
		if strings.HasSuffix(last, suffix) {
			return ""
		}
	}
	return last
}

// AssessRisk returns the highest-severity comment for the world's latest
// event, conditioned on children, debt, cash buffer, income and health.
// ok is false when the event carries no risk rule.
func AssessRisk(w models.ExportWorld, rng *rand.Rand) (RiskComment, bool) {
	event := LatestEvent(w)
	if event == "" {
		return RiskComment{}, false
	}

	name := w.Name
	if name == "" {
		name = "This person"
	}
	hasKids := w.Children > 0
	hasLoan := w.CurrentLoan > 0
	healthy := w.HealthStatus == "" || w.HealthStatus == models.HealthHealthy
	lowIncome := w.CurrentIncome != nil && *w.CurrentIncome < lowIncomeThreshold
	thinBuffer := w.CurrentIncome != nil && *w.CurrentIncome > 0 && w.Cash < *w.CurrentIncome/4

	var cands []RiskComment
	add := func(ok bool, severity int, format string, args ...interface{}) {
		if ok {
			cands = append(cands, RiskComment{Text: fmt.Sprintf(format, args...), Severity: severity})
		}
	}

	switch {
	case event == "layoff":
		add(true, 8, "%s got laid off this year, a serious negative shock.", name)
		add(hasKids, 11, "%s got laid off while raising children. Extremely stressful.", name)
		add(hasLoan, 12, "%s lost their job while still carrying debt. Repayment is at risk.", name)
		add(thinBuffer, 10, "%s was laid off with almost no cash buffer and may run out of funds.", name)
	case event == "sickness":
		add(true, 7, "%s experienced health problems this year.", name)
		add(hasKids, 9, "%s became sick while raising children, which is difficult to manage.", name)
		add(hasLoan, 9, "%s is ill this year while carrying debt. Repayment risk increases.", name)
	case event == "divorce":
		add(true, 8, "%s went through a divorce this year, a major emotional and financial shift.", name)
		add(hasKids, 10, "%s divorced while having children. Extremely heavy situation.", name)
		add(hasLoan, 10, "%s divorced while carrying debt, and the finances got complicated.", name)
	case event == "kid" || event == "have_first_child":
		add(true, 6, "%s had a child this year. Long-term commitment increases.", name)
		add(hasLoan, 8, "%s had a child while still in debt. Expenses will rise further.", name)
		add(lowIncome, 9, "%s welcomed a child despite relatively low income. Budgeting will be hard.", name)
	case event == "marry":
		partner := pickPartner(name, rng)
		add(true, 4, "%s got married this year to %s.", name, partner)
		add(hasLoan, 5, "%s married %s this year while carrying debt. Financial planning becomes important.", name, partner)
		add(thinBuffer, 6, "%s married %s this year with very low cash reserves, a financially risky start.", name, partner)
		add(!healthy, 6, "%s married %s despite health issues. Potential strain ahead.", name, partner)
	case event == "new_job":
		add(true, 5, "%s started a new job this year.", name)
		add(hasLoan && thinBuffer, 7, "%s began a new job while in debt and with little cash, an unstable transition.", name)
	case event == "income_decrease":
		add(true, 6, "%s's income decreased this year.", name)
		add(hasLoan, 9, "%s's income dropped while carrying debt. The repayment burden worsens.", name)
		add(hasKids, 8, "%s's household faces an income decrease while raising children. Tough year.", name)
	case event == "income_increase":
		add(true, 2, "%s's income increased this year.", name)
		add(hasLoan && thinBuffer, 4, "%s gained more income but remains fragile due to debt and low savings.", name)
	case event == "go_on_vacation":
		add(true, 3, "%s went on vacation this year.", name)
		add(hasLoan && thinBuffer, 7, "%s went on vacation despite debt and low savings. Financially risky leisure.", name)
	case strings.HasPrefix(event, "take_loan"):
		add(true, 7, "%s took out a loan this year. Long-term obligations increased.", name)
		add(thinBuffer, 10, "%s took a loan with thin cash reserves, a highly leveraged position.", name)
		add(!healthy, 9, "%s took a loan despite health issues. Dangerous if income drops.", name)
	}

	if len(cands) == 0 {
		return RiskComment{}, false
	}
	// Stable sort keeps the first-listed comment on equal severity.
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Severity > cands[j].Severity })
	best := cands[0]
	best.Name, best.BranchID, best.Event = name, w.BranchID, event
	return best, true
}

func pickPartner(name string, rng *rand.Rand) string {
	for {
		p := partnerNames[rng.IntN(len(partnerNames))]
		if p != name {
			return p
		}
	}
}

// MostRisky picks the single highest-severity comment across worlds. Earlier
// worlds win ties.
func MostRisky(worlds []models.ExportWorld, rng *rand.Rand) (RiskComment, bool) {
	var best RiskComment
	found := false
	for _, w := range worlds {
		c, ok := AssessRisk(w, rng)
		if !ok {
			continue
		}
		if !found || c.Severity > best.Severity {
			best, found = c, true
		}
	}
	return best, found
}

// CommentaryService narrates triggered events. Every remark starts from the
// risk rules; when an LLM provider is configured the text is replaced by a
// generated commentary that sees the last few events.
type CommentaryService struct {
	catalog  *Catalog
	provider llm.Provider
	model    string
	window   int
	rng      *rand.Rand

	mu       sync.Mutex
	history  []llm.Message
	recent   []models.Commentary
	listener func(models.Commentary)

	logger  *utils.Logger
	metrics *utils.APIMetrics
}

// NewCommentaryService creates the narrator. provider may be nil.
func NewCommentaryService(catalog *Catalog, provider llm.Provider, model string, window int, seed uint64, logger *utils.Logger, metrics *utils.APIMetrics) *CommentaryService {
	if window <= 0 {
		window = 5
	}
	return &CommentaryService{
		catalog:  catalog,
		provider: provider,
		model:    model,
		window:   window,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger:   logger,
		metrics:  metrics,
	}
}

// SetListener registers a callback invoked with every new commentary.
func (c *CommentaryService) SetListener(fn func(models.Commentary)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = fn
}

// Run consumes simulation signals until ctx is done or the channel closes.
func (c *CommentaryService) Run(ctx context.Context, signals <-chan models.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			switch sig.Kind {
			case models.SignalStateChanged:
				if sig.Event != nil && sig.State != nil {
					c.Narrate(ctx, sig.BranchID, sig.Event.Name, sig.MonthIndex, *sig.State)
				}
			case models.SignalReset:
				c.Reset()
			}
		}
	}
}

// Narrate produces and records the commentary for one event.
func (c *CommentaryService) Narrate(ctx context.Context, branchID int, event string, monthIndex int, state models.LifeState) models.Commentary {
	world := models.WorldFromBranch(models.Branch{ID: branchID, State: state})

	c.mu.Lock()
	risk, ok := AssessRisk(world, c.rng)
	c.mu.Unlock()

	entry := models.Commentary{
		BranchID:   branchID,
		EventName:  event,
		MonthLabel: models.MonthLabel(monthIndex),
		CreatedAt:  time.Now(),
	}
	if ok {
		entry.Text, entry.Severity = risk.Text, risk.Severity
	} else {
		entry.Text = fmt.Sprintf("%s experienced %s", displayName(state.Name), event)
		if def, found := c.catalog.Get(event); found {
			entry.Severity = def.Severity
		}
	}

	if c.provider != nil {
		prompt := formatEventPrompt(world, event, monthIndex)
		if text, err := c.enrich(ctx, prompt); err != nil {
			c.logger.Warn("commentary enrichment failed", map[string]interface{}{
				"event":  event,
				"branch": branchID,
				"error":  err.Error(),
			})
			if c.metrics != nil {
				c.metrics.RecordError("llm", "commentary")
			}
		} else {
			entry.Text, entry.Enriched = text, true
		}
	}

	c.mu.Lock()
	c.recent = append(c.recent, entry)
	if len(c.recent) > maxRecentComments {
		c.recent = c.recent[len(c.recent)-maxRecentComments:]
	}
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener(entry)
	}
	return entry
}

func (c *CommentaryService) enrich(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	history := append([]llm.Message(nil), c.history...)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, commentaryTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.provider.CompleteText(ctx, llm.CompletionRequest{
		SystemPrompt: commentarySystemPrompt,
		Messages:     history,
		Prompt:       prompt,
		MaxTokens:    commentaryTokens,
		Model:        c.model,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("empty completion")
	}
	if c.metrics != nil {
		c.metrics.RecordLLMRequest(c.provider.GetName(), resp.ModelName, resp.TokensUsed, time.Since(start))
	}

	c.mu.Lock()
	c.history = append(c.history,
		llm.Message{Role: "user", Content: prompt},
		llm.Message{Role: "assistant", Content: text},
	)
	if limit := 2 * c.window; len(c.history) > limit {
		c.history = append([]llm.Message(nil), c.history[len(c.history)-limit:]...)
	}
	c.mu.Unlock()
	return text, nil
}

// Recent returns up to n commentaries, newest last. n <= 0 returns all kept.
func (c *CommentaryService) Recent(n int) []models.Commentary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.recent) {
		n = len(c.recent)
	}
	return append([]models.Commentary(nil), c.recent[len(c.recent)-n:]...)
}

// HistoryLen is the number of conversation turns kept for the LLM.
func (c *CommentaryService) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Reset forgets the conversation and recorded commentaries.
func (c *CommentaryService) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.recent = nil
}

func displayName(name string) string {
	if name == "" {
		return "This person"
	}
	return name
}

func formatEventPrompt(w models.ExportWorld, event string, monthIndex int) string {
	year, month := models.YearMonth(monthIndex)
	income := 0.0
	if w.CurrentIncome != nil {
		income = *w.CurrentIncome
	}
	return fmt.Sprintf(`EVENT (%d/%02d):
Person: %s
Event: %s
Income: $%.2f
Status: %s
Children: %d

Generate a 2-3 sentence sports commentary for this life event.`,
		year, month, displayName(w.Name), event, income, w.FamilyStatus, w.Children)
}
