// internal/services/timeline.go
package services

import (
	"math"

	"github.com/Corphon/LifeBranches/internal/config"
)

// Timeline maps between the cursor and world coordinates. Event positions
// are fixed in world space; only the cursor moves, and it decreases over time.
type Timeline struct {
	MonthSpacing float64
	StickmanX    float64 // stickman's fixed screen x
	ViewWidth    float64
}

// NewTimeline builds the geometry from cfg.
func NewTimeline(cfg *config.SimulationConfig) Timeline {
	return Timeline{
		MonthSpacing: cfg.MonthSpacing,
		StickmanX:    cfg.StickmanX,
		ViewWidth:    cfg.ViewWidth,
	}
}

// InitialCursor places month 0 directly under the stickman.
func (t Timeline) InitialCursor() float64 {
	return t.StickmanX
}

// StickmanWorldX is the stickman's position in world space at cursor.
func (t Timeline) StickmanWorldX(cursor float64) float64 {
	return t.StickmanX - cursor
}

// EventPosition is the world x of a month.
func (t Timeline) EventPosition(monthIndex int) float64 {
	return float64(monthIndex) * t.MonthSpacing
}

// VisibleRange is the world span drawn on screen at cursor.
func (t Timeline) VisibleRange(cursor float64) (start, end float64) {
	return -cursor, -cursor + t.ViewWidth
}

// MonthIndexAt is the month the stickman is in at cursor.
func (t Timeline) MonthIndexAt(cursor float64) int {
	if t.MonthSpacing <= 0 {
		return 0
	}
	return int(math.Floor(t.StickmanWorldX(cursor) / t.MonthSpacing))
}

// CursorForMonth returns the cursor at which the stickman reaches monthIndex.
func (t Timeline) CursorForMonth(monthIndex int) float64 {
	return t.StickmanX - t.EventPosition(monthIndex)
}
