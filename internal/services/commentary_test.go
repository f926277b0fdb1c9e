package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/LifeBranches/internal/llm"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/utils"
)

func income(v float64) *float64 { return &v }

func TestAssessRisk(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	tests := []struct {
		name     string
		world    models.ExportWorld
		severity int
		contains string
		ok       bool
	}{
		{
			name:     "plain layoff",
			world:    models.ExportWorld{Name: "Ada", Cash: 90000, CurrentIncome: income(60000), TrajectoryEvents: []string{"layoff"}},
			severity: 8,
			contains: "laid off this year",
			ok:       true,
		},
		{
			name:     "layoff with debt beats kids",
			world:    models.ExportWorld{Name: "Ada", Children: 2, CurrentLoan: 1000, Cash: 90000, CurrentIncome: income(60000), TrajectoryEvents: []string{"layoff"}},
			severity: 12,
			contains: "carrying debt",
			ok:       true,
		},
		{
			name:     "thin buffer layoff",
			world:    models.ExportWorld{Name: "Ada", Cash: 100, CurrentIncome: income(60000), TrajectoryEvents: []string{"layoff"}},
			severity: 10,
			contains: "cash buffer",
			ok:       true,
		},
		{
			name:     "child on low income",
			world:    models.ExportWorld{Name: "Bo", Cash: 50000, CurrentIncome: income(30000), TrajectoryEvents: []string{"have_first_child"}},
			severity: 9,
			contains: "low income",
			ok:       true,
		},
		{
			name:     "loan without income is not thin",
			world:    models.ExportWorld{Name: "Cy", TrajectoryEvents: []string{"take_loan"}},
			severity: 7,
			contains: "took out a loan",
			ok:       true,
		},
		{
			name:     "vacation in debt and thin",
			world:    models.ExportWorld{Name: "Di", CurrentLoan: 5, Cash: 10, CurrentIncome: income(48000), TrajectoryEvents: []string{"go_on_vacation"}},
			severity: 7,
			contains: "risky leisure",
			ok:       true,
		},
		{
			name:  "not happened",
			world: models.ExportWorld{Name: "Ed", TrajectoryEvents: []string{"layoff", "marry_not_chosen"}},
		},
		{
			name:  "no events",
			world: models.ExportWorld{Name: "Ed"},
		},
		{
			name:  "event without rule",
			world: models.ExportWorld{Name: "Ed", TrajectoryEvents: []string{"lottery_win"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AssessRisk(tt.world, rng)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Severity != tt.severity {
				t.Errorf("severity = %d, want %d (%q)", got.Severity, tt.severity, got.Text)
			}
			if !strings.Contains(got.Text, tt.contains) {
				t.Errorf("text %q does not contain %q", got.Text, tt.contains)
			}
		})
	}
}

func TestAssessRiskMarriageNamesPartner(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 50; i++ {
		got, ok := AssessRisk(models.ExportWorld{Name: "Marco", TrajectoryEvents: []string{"marry"}}, rng)
		if !ok {
			t.Fatal("expected a comment")
		}
		if strings.HasSuffix(got.Text, "to Marco.") {
			t.Fatalf("partner has the same name: %q", got.Text)
		}
	}
}

func TestMostRisky(t *testing.T) {
	worlds := []models.ExportWorld{
		{Name: "A", BranchID: 0, TrajectoryEvents: []string{"income_increase"}},
		{Name: "B", BranchID: 1, CurrentLoan: 10, TrajectoryEvents: []string{"sickness"}},
		{Name: "C", BranchID: 2, Children: 1, TrajectoryEvents: []string{"divorce"}},
		{Name: "D", BranchID: 3, TrajectoryEvents: []string{"nothing"}},
	}
	got, ok := MostRisky(worlds, rand.New(rand.NewPCG(1, 1)))
	if !ok {
		t.Fatal("expected a result")
	}
	if got.BranchID != 2 || got.Severity != 10 || got.Event != "divorce" {
		t.Errorf("got %+v", got)
	}

	if _, ok := MostRisky(worlds[3:], rand.New(rand.NewPCG(1, 1))); ok {
		t.Error("expected nothing for uneventful worlds")
	}
}

type fakeProvider struct {
	replies []string
	err     error
	reqs    []llm.CompletionRequest
}

func (f *fakeProvider) Initialize(map[string]string) error { return nil }
func (f *fakeProvider) GetName() string                    { return "fake" }

func (f *fakeProvider) CompleteText(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	text := "What a play!"
	if len(f.replies) > 0 {
		text, f.replies = f.replies[0], f.replies[1:]
	}
	return &llm.CompletionResponse{Text: text, ModelName: "m", TokensUsed: 3}, nil
}

func newTestCommentary(t *testing.T, p llm.Provider, window int) *CommentaryService {
	t.Helper()
	cat, err := DefaultCatalog(0.05)
	if err != nil {
		t.Fatal(err)
	}
	am := utils.NewAPIMetrics(utils.NewMetricsCollector(), utils.NopLogger())
	return NewCommentaryService(cat, p, "", window, 7, utils.NopLogger(), am)
}

func TestNarrateWithoutProvider(t *testing.T) {
	c := newTestCommentary(t, nil, 5)

	state := models.LifeState{Name: "Ada", Money: 100, MonthlyWage: 3000, History: []string{"layoff"}}
	got := c.Narrate(context.Background(), 1, "layoff", 5, state)
	if got.Enriched || got.Severity != 10 || got.MonthLabel != "2025-06" {
		t.Errorf("got %+v", got)
	}

	state.History = []string{"lottery_win"}
	got = c.Narrate(context.Background(), 1, "lottery_win", 6, state)
	if got.Text != "Ada experienced lottery_win" {
		t.Errorf("fallback text = %q", got.Text)
	}
	def, _ := c.catalog.Get("lottery_win")
	if got.Severity != def.Severity {
		t.Errorf("fallback severity = %d, want catalog %d", got.Severity, def.Severity)
	}

	if n := len(c.Recent(0)); n != 2 {
		t.Errorf("Recent = %d entries", n)
	}
}

func TestNarrateRollingWindow(t *testing.T) {
	p := &fakeProvider{}
	c := newTestCommentary(t, p, 2)

	state := models.LifeState{Name: "Ada", MonthlyWage: 3000, History: []string{"new_job"}}
	for i := 0; i < 4; i++ {
		got := c.Narrate(context.Background(), 0, "new_job", i, state)
		if !got.Enriched || got.Text != "What a play!" {
			t.Fatalf("narration %d = %+v", i, got)
		}
	}

	if got := c.HistoryLen(); got != 4 {
		t.Errorf("history = %d turns, want 4", got)
	}
	last := p.reqs[len(p.reqs)-1]
	if len(last.Messages) != 4 || last.SystemPrompt == "" {
		t.Errorf("last request carried %d messages", len(last.Messages))
	}
	if !strings.Contains(last.Prompt, "2025/04") || !strings.Contains(last.Prompt, "Event: new_job") {
		t.Errorf("prompt = %q", last.Prompt)
	}
}

func TestNarrateProviderFailureFallsBack(t *testing.T) {
	c := newTestCommentary(t, &fakeProvider{err: errors.New("overloaded")}, 5)

	state := models.LifeState{Name: "Ada", MonthlyWage: 3000, History: []string{"sickness"}}
	got := c.Narrate(context.Background(), 0, "sickness", 0, state)
	if got.Enriched || !strings.Contains(got.Text, "health problems") {
		t.Errorf("got %+v", got)
	}
	if c.HistoryLen() != 0 {
		t.Error("failed completions must not enter the history")
	}
}

func TestCommentaryRunConsumesSignals(t *testing.T) {
	c := newTestCommentary(t, nil, 5)
	got := make(chan models.Commentary, 1)
	c.SetListener(func(m models.Commentary) { got <- m })

	signals := make(chan models.Signal, 4)
	state := models.LifeState{Name: "Ada", History: []string{"divorce"}}
	signals <- models.Signal{Kind: models.SignalEventTriggered, Event: &models.GameEvent{Name: "divorce"}}
	signals <- models.Signal{Kind: models.SignalStateChanged, BranchID: 3, Event: &models.GameEvent{Name: "divorce"}, State: &state}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx, signals)
		close(done)
	}()

	select {
	case m := <-got:
		if m.BranchID != 3 || m.EventName != "divorce" {
			t.Errorf("commentary = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no commentary produced")
	}

	signals <- models.Signal{Kind: models.SignalReset}
	close(signals)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	if len(c.Recent(0)) != 0 {
		t.Error("reset signal should clear commentaries")
	}
}
