package render

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/Corphon/LifeBranches/internal/config"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/services"
	"github.com/Corphon/LifeBranches/internal/utils"
)

func newTestView(t *testing.T, commentary func(int) []models.Commentary) (*View, *services.Simulation, tcell.SimulationScreen) {
	t.Helper()
	cfg := config.DefaultSimulation()
	cfg.Seed = 3
	catalog, err := services.DefaultCatalog(cfg.MortgageRate)
	if err != nil {
		t.Fatal(err)
	}
	sim := services.NewSimulation(cfg, catalog, utils.NopLogger(), utils.NewMetricsCollector())

	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatal(err)
	}
	screen.SetSize(120, 30)
	t.Cleanup(screen.Fini)

	return NewView(screen, sim, commentary, utils.NopLogger()), sim, screen
}

// line reads row y back from the screen.
func line(screen tcell.Screen, y int) string {
	w, _ := screen.Size()
	var b strings.Builder
	for x := 0; x < w; x++ {
		r, _, _, _ := screen.GetContent(x, y)
		b.WriteRune(r)
	}
	return b.String()
}

func screenText(screen tcell.Screen) string {
	_, h := screen.Size()
	var b strings.Builder
	for y := 0; y < h; y++ {
		b.WriteString(line(screen, y))
		b.WriteByte('\n')
	}
	return b.String()
}

func key(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestDrawShowsTimeline(t *testing.T) {
	view, sim, screen := newTestView(t, func(int) []models.Commentary {
		return []models.Commentary{{BranchID: 1, MonthLabel: "2025-01", Text: "Sam experienced bonus"}}
	})
	if _, err := sim.Schedule(services.ScheduleRequest{EventName: "layoff", Year: 2025, Month: 3, BranchID: 0}); err != nil {
		t.Fatal(err)
	}
	sim.Tick()
	view.Draw()

	text := screenText(screen)
	for _, want := range []string{"LifeBranches", "2025-01", "branches 2", "#0", "#1", "☺", "layoff", "Sam experienced bonus", "q quit"} {
		if !strings.Contains(text, want) {
			t.Errorf("screen missing %q\n%s", want, text)
		}
	}
	if strings.Count(text, "☺") != 2 {
		t.Errorf("want one stickman per branch, got %d", strings.Count(text, "☺"))
	}
}

func TestKeysDriveSimulation(t *testing.T) {
	view, sim, screen := newTestView(t, nil)

	if !view.HandleEvent(key('s')) {
		t.Fatal("s quit the view")
	}
	if n := len(sim.Snapshot().Branches); n != 4 {
		t.Errorf("branches after s = %d", n)
	}

	view.HandleEvent(key('o'))
	if n := len(sim.Snapshot().Branches); n != 5 {
		t.Errorf("branches after o = %d", n)
	}

	view.HandleEvent(key('e'))
	view.HandleEvent(key('f'))
	if n := len(sim.Pending()); n != 2 {
		t.Errorf("pending after e, f = %d", n)
	}

	view.HandleEvent(key(' '))
	if !sim.Paused() {
		t.Error("space did not pause")
	}
	view.Draw()
	if !strings.Contains(line(screen, 0), "[PAUSED]") {
		t.Errorf("header = %q", line(screen, 0))
	}
	view.HandleEvent(key(' '))
	if sim.Paused() {
		t.Error("space did not resume")
	}

	view.HandleEvent(key('r'))
	if snap := sim.Snapshot(); len(snap.Branches) != 2 || snap.QueueLength != 0 {
		t.Errorf("after reset: %d branches, %d queued", len(snap.Branches), snap.QueueLength)
	}

	if view.HandleEvent(key('q')) {
		t.Error("q did not quit")
	}
	if view.HandleEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)) {
		t.Error("escape did not quit")
	}
}

func TestRunQuitsOnKey(t *testing.T) {
	view, _, screen := newTestView(t, nil)

	done := make(chan error, 1)
	go func() { done <- view.Run(context.Background()) }()
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after q")
	}
}

func TestPollEventsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	// a terminal that never runs out of events
	events := pollEvents(ctx, func() tcell.Event { return key('x') })

	// fill the buffer with nobody reading, then cancel
	time.Sleep(10 * time.Millisecond)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("poller still running after cancel")
		}
	}
}

func TestPollEventsClosesOnFinish(t *testing.T) {
	n := 0
	events := pollEvents(context.Background(), func() tcell.Event {
		if n++; n > 3 {
			return nil
		}
		return key('x')
	})

	got := 0
	for range events {
		got++
	}
	if got != 3 {
		t.Errorf("events = %d, want 3", got)
	}
}

func TestLayoutMapping(t *testing.T) {
	l := layout{width: 100, top: 2, bottom: 20, center: 11, viewStart: -200, scale: 100.0 / 1200}
	if got := l.col(-200); got != 0 {
		t.Errorf("col(view start) = %d", got)
	}
	if got := l.col(1000); got != 100 {
		t.Errorf("col(view end) = %d", got)
	}
	if got := l.row(-40); got != 10 {
		t.Errorf("row(-40) = %d", got)
	}
	if l.inTimeline(21) || !l.inTimeline(2) {
		t.Error("inTimeline bounds")
	}
}
