// internal/services/event_queue.go
package services

import (
	"fmt"

	apperrors "github.com/Corphon/LifeBranches/internal/errors"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/utils"
)

// ScheduleRequest asks for an event on a branch at a calendar month.
type ScheduleRequest struct {
	EventName string
	Year      int
	Month     int // 1-12
	BranchID  int
	Overrides *models.Overrides
	Source    string
	Text      string
}

// BranchLookup reports whether a branch id is live.
type BranchLookup interface {
	Exists(id int) bool
}

// EventQueue holds scheduled events until their month scrolls into view and
// their branch exists.
type EventQueue struct {
	catalog  *Catalog
	timeline Timeline
	pending  []models.ScheduledEvent
	nextID   int64
	logger   *utils.Logger
}

// NewEventQueue creates an empty queue validating names against catalog.
func NewEventQueue(catalog *Catalog, timeline Timeline, logger *utils.Logger) *EventQueue {
	return &EventQueue{
		catalog:  catalog,
		timeline: timeline,
		nextID:   1,
		logger:   logger,
	}
}

// Schedule enqueues req. Unknown events and invalid months are rejected;
// whether the branch exists or the month has passed is deliberately not
// checked here, since a future split may create the branch.
func (q *EventQueue) Schedule(req ScheduleRequest, cursor float64) (*models.ScheduledEvent, error) {
	if _, err := q.catalog.Lookup(req.EventName); err != nil {
		return nil, err
	}
	if !models.ValidMonth(req.Month) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("month %d", req.Month), apperrors.ErrInvalidMonth)
	}

	source := req.Source
	if source == "" {
		source = models.SourceAPI
	}

	ev := models.ScheduledEvent{
		BranchID:   req.BranchID,
		EventName:  req.EventName,
		Year:       req.Year,
		Month:      req.Month,
		MonthIndex: models.MonthIndex(req.Year, req.Month),
		Overrides:  req.Overrides,
		EnqueuedAt: cursor,
		Source:     source,
		Text:       req.Text,
	}
	q.pending = append(q.pending, ev)

	q.logger.Debug("event scheduled", map[string]interface{}{
		"event":  ev.EventName,
		"branch": ev.BranchID,
		"month":  models.MonthLabel(ev.MonthIndex),
		"source": ev.Source,
	})
	return &ev, nil
}

// Materialize converts queued events that are visible at cursor and whose
// branch exists into GameEvents. Those already behind the stickman are
// dropped. Everything else stays queued.
func (q *EventQueue) Materialize(cursor float64, branches BranchLookup) (created []models.GameEvent, dropped []models.ScheduledEvent) {
	start, end := q.timeline.VisibleRange(cursor)
	stickman := q.timeline.StickmanWorldX(cursor)

	kept := q.pending[:0]
	for _, ev := range q.pending {
		pos := q.timeline.EventPosition(ev.MonthIndex)
		if pos < start || pos > end || !branches.Exists(ev.BranchID) {
			kept = append(kept, ev)
			continue
		}

		if pos <= stickman {
			q.logger.Warn("dropping event already passed", map[string]interface{}{
				"event":  ev.EventName,
				"branch": ev.BranchID,
				"month":  models.MonthLabel(ev.MonthIndex),
			})
			dropped = append(dropped, ev)
			continue
		}

		def, _ := q.catalog.Get(ev.EventName)
		created = append(created, models.GameEvent{
			ID:          q.nextID,
			BranchID:    ev.BranchID,
			MonthIndex:  ev.MonthIndex,
			Name:        def.Name,
			Description: def.Description,
			CausesSplit: def.CausesSplit,
			Reaction:    def.Reaction,
			Overrides:   ev.Overrides,
			Text:        ev.Text,
		})
		q.nextID++
	}
	clear(q.pending[len(kept):])
	q.pending = kept
	return created, dropped
}

// Pending returns a copy of the queue.
func (q *EventQueue) Pending() []models.ScheduledEvent {
	return append([]models.ScheduledEvent(nil), q.pending...)
}

// Len is the number of queued events.
func (q *EventQueue) Len() int {
	return len(q.pending)
}

// Clear discards every queued event.
func (q *EventQueue) Clear() {
	q.pending = nil
}
