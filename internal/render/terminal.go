// internal/render/terminal.go
package render

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/services"
	"github.com/Corphon/LifeBranches/internal/utils"
)

// Controller is the part of the simulation the terminal view drives.
type Controller interface {
	Snapshot() models.Snapshot
	Timeline() services.Timeline
	SplitAll() []services.SplitResult
	SplitOne(id *int) (services.SplitResult, error)
	GenerateRandomEvent() (*models.ScheduledEvent, error)
	GenerateForcedSplitEvent() (*models.ScheduledEvent, error)
	Reset()
	Pause()
	Resume()
	Paused() bool
}

const (
	frameInterval = 50 * time.Millisecond
	headerRows    = 2
	// world units of branch offset per terminal row
	rowUnit     = 40.0
	monthLabels = 6
	helpLine    = "s split all  o split one  e random event  f forced split  r reset  space pause  q quit"
)

var (
	styleDefault  = tcell.StyleDefault
	styleHeader   = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	styleBranch   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleStickman = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleEvent    = tcell.StyleDefault.Foreground(tcell.ColorAqua)
	styleSplit    = tcell.StyleDefault.Foreground(tcell.ColorFuchsia)
	styleFired    = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleReaction = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleRuler    = tcell.StyleDefault.Foreground(tcell.ColorDarkCyan)
	styleStatus   = tcell.StyleDefault.Foreground(tcell.ColorSilver)
	styleHelp     = tcell.StyleDefault.Foreground(tcell.ColorGray).Italic(true)
)

// View draws the timeline on a terminal and maps keys to controls.
type View struct {
	screen     tcell.Screen
	sim        Controller
	commentary func(n int) []models.Commentary
	logger     *utils.Logger

	message string
}

// NewView creates a view on an initialised screen. commentary may be nil.
func NewView(screen tcell.Screen, sim Controller, commentary func(n int) []models.Commentary, logger *utils.Logger) *View {
	return &View{
		screen:     screen,
		sim:        sim,
		commentary: commentary,
		logger:     logger,
	}
}

// Run redraws until ctx ends or the user quits.
func (v *View) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := pollEvents(ctx, v.screen.PollEvent)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	v.Draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok || !v.HandleEvent(ev) {
				return nil
			}
			v.Draw()
		case <-ticker.C:
			v.Draw()
		}
	}
}

// pollEvents feeds terminal events into a channel until poll returns nil or
// ctx ends. The channel is closed when the poller exits.
func pollEvents(ctx context.Context, poll func() tcell.Event) <-chan tcell.Event {
	events := make(chan tcell.Event, 32)
	go func() {
		defer close(events)
		for {
			ev := poll()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events
}

// HandleEvent applies one terminal event. It returns false on quit.
func (v *View) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyRune:
			return v.handleRune(ev.Rune())
		}
	case *tcell.EventResize:
		v.screen.Sync()
	}
	return true
}

func (v *View) handleRune(r rune) bool {
	switch r {
	case 'q':
		return false
	case 's':
		results := v.sim.SplitAll()
		v.message = fmt.Sprintf("split %d branches", len(results))
	case 'o':
		res, err := v.sim.SplitOne(nil)
		if err != nil {
			v.message = err.Error()
			break
		}
		v.message = fmt.Sprintf("branch %d split, new branch %d", res.KeptID, res.SiblingID)
	case 'e':
		v.message = v.scheduled(v.sim.GenerateRandomEvent())
	case 'f':
		v.message = v.scheduled(v.sim.GenerateForcedSplitEvent())
	case 'r':
		v.sim.Reset()
		v.message = "timeline reset"
	case ' ':
		if v.sim.Paused() {
			v.sim.Resume()
			v.message = "resumed"
		} else {
			v.sim.Pause()
			v.message = "paused"
		}
	}
	return true
}

func (v *View) scheduled(ev *models.ScheduledEvent, err error) string {
	if err != nil {
		v.logger.Warn("key control failed", map[string]interface{}{"error": err.Error()})
		return err.Error()
	}
	return fmt.Sprintf("%s scheduled on branch %d for %s", ev.EventName, ev.BranchID, models.MonthLabel(ev.MonthIndex))
}

// layout maps world coordinates onto the screen for one frame.
type layout struct {
	width, height int
	top, bottom   int // timeline rows, inclusive
	center        int
	viewStart     float64
	scale         float64 // columns per world unit
}

func (v *View) layout(snap models.Snapshot, branchPanel int) layout {
	w, h := v.screen.Size()
	l := layout{
		width:     w,
		height:    h,
		top:       headerRows,
		bottom:    h - branchPanel - 4,
		viewStart: snap.ViewStart,
	}
	if l.bottom < l.top {
		l.bottom = l.top
	}
	l.center = (l.top + l.bottom) / 2
	if span := snap.ViewEnd - snap.ViewStart; span > 0 {
		l.scale = float64(w) / span
	}
	return l
}

func (l layout) col(worldX float64) int {
	return int(math.Floor((worldX - l.viewStart) * l.scale))
}

func (l layout) row(offset float64) int {
	return l.center + int(math.Round(offset/rowUnit))
}

func (l layout) inTimeline(row int) bool {
	return row >= l.top && row <= l.bottom
}

// Draw renders one frame from a fresh snapshot.
func (v *View) Draw() {
	snap := v.sim.Snapshot()
	timeline := v.sim.Timeline()

	panel := min(len(snap.Branches), 8)
	l := v.layout(snap, panel+1)

	v.screen.Clear()
	v.drawHeader(snap, l)
	rows := v.drawBranches(snap, l)
	v.drawRuler(snap, timeline, l)
	v.drawEvents(snap, timeline, l, rows)
	v.drawStickman(snap, l, rows)
	v.drawReactions(snap, l, rows)
	v.drawPanel(snap, l, panel)
	v.screen.Show()
}

func (v *View) drawHeader(snap models.Snapshot, l layout) {
	header := fmt.Sprintf("LifeBranches  %s  branches %d  queued %d", snap.MonthLabel, len(snap.Branches), snap.QueueLength)
	if snap.Paused {
		header += "  [PAUSED]"
	}
	v.text(0, 0, header, styleHeader, l.width)
	if v.message != "" {
		v.text(0, 1, v.message, styleStatus, l.width)
	}
}

// drawBranches draws each branch line from its creation point and returns
// the row of every visible branch id.
func (v *View) drawBranches(snap models.Snapshot, l layout) map[int]int {
	rows := make(map[int]int, len(snap.Branches))
	for _, b := range snap.Branches {
		row := l.row(b.CurrentOffset)
		if !l.inTimeline(row) {
			continue
		}
		rows[b.ID] = row

		// world x where the branch was created
		born := snap.StickmanX + snap.Cursor - b.CreatedAt
		start := max(l.col(born), 0)
		for x := start; x < l.width; x++ {
			v.screen.SetContent(x, row, '─', nil, styleBranch)
		}
		if start > 0 && start < l.width {
			v.screen.SetContent(start, row, '╭', nil, styleBranch)
		}
		label := fmt.Sprintf("#%d", b.ID)
		v.text(max(l.width-len(label), 0), row, label, styleBranch, l.width)
	}
	return rows
}

func (v *View) drawRuler(snap models.Snapshot, timeline services.Timeline, l layout) {
	row := l.bottom + 1
	if row >= l.height || timeline.MonthSpacing <= 0 {
		return
	}
	for x := 0; x < l.width; x++ {
		v.screen.SetContent(x, row, '┈', nil, styleRuler)
	}

	first := int(math.Ceil(snap.ViewStart / timeline.MonthSpacing))
	last := int(math.Floor(snap.ViewEnd / timeline.MonthSpacing))
	step := max((last-first)/monthLabels, 1)
	for m := first; m <= last; m++ {
		x := l.col(timeline.EventPosition(m))
		if x < 0 || x >= l.width {
			continue
		}
		v.screen.SetContent(x, row, '┼', nil, styleRuler)
		if (m-first)%step == 0 && row+1 < l.height {
			v.text(x, row+1, models.MonthLabel(m), styleRuler, l.width)
		}
	}
}

func (v *View) drawEvents(snap models.Snapshot, timeline services.Timeline, l layout, rows map[int]int) {
	for _, ev := range snap.Events {
		row, ok := rows[ev.BranchID]
		if !ok {
			continue
		}
		x := l.col(timeline.EventPosition(ev.MonthIndex))
		if x < 0 || x >= l.width {
			continue
		}

		mark, style := '◇', styleEvent
		switch {
		case ev.Triggered:
			mark, style = '◆', styleFired
		case ev.CausesSplit:
			style = styleSplit
		}
		v.screen.SetContent(x, row, mark, nil, style)
		if !ev.Triggered && l.inTimeline(row-1) {
			v.text(x, row-1, ev.Name, style, l.width)
		}
	}
}

func (v *View) drawStickman(snap models.Snapshot, l layout, rows map[int]int) {
	x := l.col(snap.StickmanX)
	if x < 0 || x >= l.width {
		return
	}
	for _, row := range rows {
		v.screen.SetContent(x, row, '☺', nil, styleStickman)
	}
}

func (v *View) drawReactions(snap models.Snapshot, l layout, rows map[int]int) {
	x := l.col(snap.StickmanX) + 2
	for _, r := range snap.Reactions {
		row, ok := rows[r.BranchID]
		if !ok || !l.inTimeline(row-1) {
			continue
		}
		v.text(x, row-1, "!"+r.EventName, styleReaction, l.width)
	}
}

func (v *View) drawPanel(snap models.Snapshot, l layout, panel int) {
	y := l.bottom + 3
	for i := 0; i < panel && y < l.height-2; i++ {
		s := snap.Branches[i].State
		line := fmt.Sprintf("#%-3d %-10s money %9d  wage %6d  loan %8d  %-8s kids %d  %s  %s",
			snap.Branches[i].ID, s.Name, s.Money, s.MonthlyWage, s.CurrentLoan,
			s.MaritalStatus, s.ChildCount, s.HealthStatus, s.Employment)
		v.text(0, y, line, styleDefault, l.width)
		y++
	}

	if v.commentary != nil && l.height >= 2 {
		if recent := v.commentary(1); len(recent) > 0 {
			c := recent[len(recent)-1]
			v.text(0, l.height-2, fmt.Sprintf("%s #%d: %s", c.MonthLabel, c.BranchID, c.Text), styleStatus, l.width)
		}
	}
	v.text(0, l.height-1, helpLine, styleHelp, l.width)
}

// text writes s at (x, y), clipped to width.
func (v *View) text(x, y int, s string, style tcell.Style, width int) {
	for _, r := range s {
		if x >= width {
			return
		}
		if x >= 0 {
			v.screen.SetContent(x, y, r, nil, style)
		}
		x++
	}
}
