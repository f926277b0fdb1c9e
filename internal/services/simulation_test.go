package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Corphon/LifeBranches/internal/config"
	apperrors "github.com/Corphon/LifeBranches/internal/errors"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/utils"
)

func newTestSimulation(t *testing.T, mutate func(*config.SimulationConfig)) (*Simulation, *utils.MetricsCollector) {
	t.Helper()
	cfg := config.DefaultSimulation()
	cfg.Seed = 1
	cfg.TickInterval = time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}
	metrics := utils.NewMetricsCollector()
	return NewSimulation(cfg, mustDefaultCatalog(t), utils.NopLogger(), metrics), metrics
}

func branchByID(t *testing.T, snap models.Snapshot, id int) models.BranchView {
	t.Helper()
	for _, b := range snap.Branches {
		if b.ID == id {
			return b
		}
	}
	t.Fatalf("branch %d not in snapshot", id)
	return models.BranchView{}
}

func TestSimulation_LayoffScenario(t *testing.T) {
	sim, metrics := newTestSimulation(t, nil)

	_, err := sim.Schedule(ScheduleRequest{EventName: "layoff", Year: 2025, Month: 6, BranchID: 0})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	pre := branchByID(t, sim.Snapshot(), 0).State

	sim.AdvanceMonths(5)
	snap := sim.Snapshot()
	if snap.MonthIndex != 5 {
		t.Fatalf("MonthIndex = %d, want 5", snap.MonthIndex)
	}
	if len(snap.Branches) != 3 {
		t.Fatalf("branches = %d, want 3", len(snap.Branches))
	}

	kept := branchByID(t, snap, 0).State
	sibling := branchByID(t, snap, 2).State
	if kept.MonthlyWage != pre.MonthlyWage*60/100 {
		t.Errorf("kept wage = %d, want 60%% of %d", kept.MonthlyWage, pre.MonthlyWage)
	}
	if sibling.MonthlyWage != pre.MonthlyWage {
		t.Errorf("sibling wage = %d, want unchanged %d", sibling.MonthlyWage, pre.MonthlyWage)
	}
	// Wages accrue after triggers in the same tick, so the June wage is
	// already the reduced one on the kept branch.
	if sibling.Money-kept.Money != sibling.MonthlyWage-kept.MonthlyWage {
		t.Errorf("money: kept %d sibling %d", kept.Money, sibling.Money)
	}
	if len(snap.Events) != 1 || !snap.Events[0].Triggered {
		t.Errorf("events = %+v", snap.Events)
	}
	if metrics.GetCounterValue(utils.MetricEventsTriggered) != 1 || metrics.GetGauge(utils.GaugeBranchesLive) != 3 {
		t.Errorf("metrics = %v", metrics.GetMetrics())
	}
}

func TestSimulation_QueuedForFutureBranch(t *testing.T) {
	sim, _ := newTestSimulation(t, nil)

	if _, err := sim.Schedule(ScheduleRequest{EventName: "bonus", Year: 2025, Month: 4, BranchID: 2}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		sim.Tick()
	}
	if len(sim.Pending()) != 1 {
		t.Fatal("event for a missing branch left the queue")
	}

	zero := 0
	res, err := sim.SplitOne(&zero)
	if err != nil || res.SiblingID != 2 {
		t.Fatalf("SplitOne = %+v, %v", res, err)
	}

	sim.Tick()
	if len(sim.Pending()) != 0 {
		t.Fatal("event not materialized once its branch exists")
	}
	sim.AdvanceMonths(4)

	snap := sim.Snapshot()
	if len(snap.Events) != 1 || snap.Events[0].BranchID != 2 || !snap.Events[0].Triggered {
		t.Errorf("events = %+v", snap.Events)
	}
}

func TestSimulation_WageAccrualAcrossTicks(t *testing.T) {
	sim, metrics := newTestSimulation(t, nil)
	start := branchByID(t, sim.Snapshot(), 1).State

	sim.AdvanceMonths(12)

	got := branchByID(t, sim.Snapshot(), 1).State
	if got.Money-start.Money != 12*start.MonthlyWage {
		t.Errorf("money grew by %d, want %d", got.Money-start.Money, 12*start.MonthlyWage)
	}
	if metrics.GetCounterValue(utils.MetricWageAccruals) != 12 {
		t.Errorf("wage_accruals = %d", metrics.GetCounterValue(utils.MetricWageAccruals))
	}
}

func TestSimulation_PauseResume(t *testing.T) {
	sim, _ := newTestSimulation(t, nil)
	if _, err := sim.Schedule(ScheduleRequest{EventName: "kid", Year: 2025, Month: 3}); err != nil {
		t.Fatal(err)
	}

	sim.Pause()
	cursor := sim.Snapshot().Cursor
	for i := 0; i < 10; i++ {
		sim.Tick()
	}
	snap := sim.Snapshot()
	if snap.Cursor != cursor || !snap.Paused {
		t.Fatalf("paused simulation moved: %v -> %v", cursor, snap.Cursor)
	}
	if snap.QueueLength != 1 {
		t.Error("pause lost the queued event")
	}

	sim.Resume()
	sim.Tick()
	if sim.Snapshot().Cursor >= cursor {
		t.Error("resumed simulation did not move")
	}
}

func TestSimulation_Reset(t *testing.T) {
	sim, _ := newTestSimulation(t, nil)
	signals := sim.Subscribe("test", 16)

	sim.SplitAll()
	if _, err := sim.Schedule(ScheduleRequest{EventName: "nothing", Year: 2025, Month: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := sim.Schedule(ScheduleRequest{EventName: "nothing", Year: 2030, Month: 2}); err != nil {
		t.Fatal(err)
	}
	sim.AdvanceMonths(2)

	sim.Reset()
	snap := sim.Snapshot()
	if len(snap.Branches) != 2 || len(snap.Events) != 0 || len(snap.Reactions) != 0 || snap.QueueLength != 0 {
		t.Fatalf("reset left state behind: %+v", snap)
	}

	var sawReset, sawReleased bool
	for len(signals) > 0 {
		sig := <-signals
		switch sig.Kind {
		case models.SignalReset:
			sawReset = true
		case models.SignalAvatarsReleased:
			sawReleased = len(sig.Avatars) == 2
		}
	}
	if !sawReset || !sawReleased {
		t.Errorf("reset=%v released=%v", sawReset, sawReleased)
	}
}

func TestSimulation_RandomEvents(t *testing.T) {
	sim, _ := newTestSimulation(t, nil)
	month := sim.Snapshot().MonthIndex

	ev, err := sim.GenerateRandomEvent()
	if err != nil {
		t.Fatalf("GenerateRandomEvent: %v", err)
	}
	if ev.MonthIndex != month+1 || ev.Source != models.SourceRandom {
		t.Errorf("random event = %+v", ev)
	}

	forced, err := sim.GenerateForcedSplitEvent()
	if err != nil {
		t.Fatal(err)
	}
	def, _ := sim.Catalog().Get(forced.EventName)
	if !def.CausesSplit || forced.Source != models.SourceForced {
		t.Errorf("forced event %q does not split", forced.EventName)
	}
	if !(forced.BranchID == 0 || forced.BranchID == 1) {
		t.Errorf("forced event on unknown branch %d", forced.BranchID)
	}
	if len(sim.Pending()) != 2 {
		t.Errorf("pending = %d", len(sim.Pending()))
	}
}

func TestSimulation_ScheduleErrors(t *testing.T) {
	sim, metrics := newTestSimulation(t, nil)
	_, err := sim.Schedule(ScheduleRequest{EventName: "nope", Year: 2025, Month: 1})
	if !errors.Is(err, apperrors.ErrUnknownEvent) {
		t.Fatalf("err = %v", err)
	}
	if metrics.GetCounterValue(utils.MetricEventsScheduled) != 0 {
		t.Error("rejected event counted as scheduled")
	}

	missing := 9
	if _, err := sim.SplitOne(&missing); !apperrors.IsNotFoundError(err) {
		t.Errorf("SplitOne(9) err = %v", err)
	}
}

func TestSimulation_SignalsNeverBlock(t *testing.T) {
	sim, metrics := newTestSimulation(t, nil)
	signals := sim.Subscribe("slow", 1)

	for i := 0; i < 5; i++ {
		sim.SplitAll()
	}
	if len(signals) != 1 {
		t.Errorf("buffered = %d, want 1", len(signals))
	}
	if metrics.GetCounterValue(utils.MetricSignalsDropped) == 0 {
		t.Error("dropped signals not counted")
	}

	sim.Unsubscribe(signals)
	<-signals
	if _, ok := <-signals; ok {
		t.Error("channel not closed after Unsubscribe")
	}
}

func TestSimulation_TriggerSignals(t *testing.T) {
	sim, _ := newTestSimulation(t, nil)
	signals := sim.Subscribe("test", 64)

	name := "Grace"
	_, err := sim.Schedule(ScheduleRequest{
		EventName: "promotion", Year: 2025, Month: 2, BranchID: 1,
		Overrides: &models.Overrides{Name: &name, NarrationAudioID: "a1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	sim.AdvanceMonths(2)

	var kinds []models.SignalKind
	var state *models.LifeState
	for len(signals) > 0 {
		sig := <-signals
		kinds = append(kinds, sig.Kind)
		if sig.Kind == models.SignalStateChanged {
			state = sig.State
		}
	}
	want := []models.SignalKind{models.SignalEventTriggered, models.SignalPlayNarration, models.SignalStateChanged}
	if len(kinds) != len(want) {
		t.Fatalf("signals = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("signal %d = %s, want %s", i, kinds[i], want[i])
		}
	}
	if state == nil || state.Name != "Grace" {
		t.Errorf("state = %+v", state)
	}
}

func TestSimulation_Run(t *testing.T) {
	sim, metrics := newTestSimulation(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := sim.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run err = %v", err)
	}
	if metrics.GetCounterValue(utils.MetricTicks) == 0 {
		t.Error("Run never ticked")
	}
}
