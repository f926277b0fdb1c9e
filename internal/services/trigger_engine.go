// internal/services/trigger_engine.go
package services

import (
	"math/rand/v2"
	"time"

	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/utils"
)

// TriggerEngine arms materialized events, fires them once the stickman
// reaches them and keeps the wage cadence.
type TriggerEngine struct {
	catalog          *Catalog
	store            *BranchStore
	timeline         Timeline
	rng              *rand.Rand
	reactionDuration float64
	logger           *utils.Logger

	events    []*models.GameEvent
	reactions []models.Reaction

	lastMonth int
	hasMonth  bool
}

// NewTriggerEngine wires the engine to the store it mutates.
func NewTriggerEngine(catalog *Catalog, store *BranchStore, timeline Timeline, rng *rand.Rand, reactionDuration float64, logger *utils.Logger) *TriggerEngine {
	return &TriggerEngine{
		catalog:          catalog,
		store:            store,
		timeline:         timeline,
		rng:              rng,
		reactionDuration: reactionDuration,
		logger:           logger,
	}
}

// Arm adds materialized events in creation order.
func (e *TriggerEngine) Arm(events ...models.GameEvent) {
	for i := range events {
		ev := events[i]
		e.events = append(e.events, &ev)
	}
}

// Evaluate fires every pending event the stickman has reached at cursor and
// returns the signals produced. Triggered events are never revisited.
func (e *TriggerEngine) Evaluate(cursor float64) []models.Signal {
	stickman := e.timeline.StickmanWorldX(cursor)
	var signals []models.Signal

	for _, ev := range e.events {
		if ev.Triggered || stickman < e.timeline.EventPosition(ev.MonthIndex) {
			continue
		}
		ev.Triggered = true
		ev.TriggeredAt = cursor
		signals = append(signals, e.fire(ev, cursor)...)
	}
	return signals
}

func (e *TriggerEngine) fire(ev *models.GameEvent, cursor float64) []models.Signal {
	now := time.Now()
	fired := *ev
	signals := []models.Signal{{
		Kind:       models.SignalEventTriggered,
		BranchID:   ev.BranchID,
		Event:      &fired,
		MonthIndex: ev.MonthIndex,
		At:         now,
	}}

	e.reactions = append(e.reactions, models.Reaction{
		BranchID:    ev.BranchID,
		EventName:   ev.Name,
		Art:         ev.Reaction,
		StartCursor: cursor,
		Duration:    e.reactionDuration,
	})

	if ev.Overrides.HasNarration() {
		signals = append(signals, models.Signal{
			Kind:          models.SignalPlayNarration,
			BranchID:      ev.BranchID,
			AudioID:       ev.Overrides.NarrationAudioID,
			AudioDuration: ev.Overrides.NarrationDuration,
			MonthIndex:    ev.MonthIndex,
			At:            now,
		})
	}

	targetID := ev.BranchID
	siblingID := 0
	if ev.CausesSplit {
		res, err := e.store.SplitOne(ev.BranchID, cursor)
		if err != nil {
			e.logger.Warn("split skipped", map[string]interface{}{
				"event":  ev.Name,
				"branch": ev.BranchID,
				"error":  err.Error(),
			})
			return signals
		}
		targetID, siblingID = res.KeptID, res.SiblingID
	}

	branch, ok := e.store.Get(targetID)
	if !ok {
		e.logger.Warn("event branch missing", map[string]interface{}{"event": ev.Name, "branch": targetID})
		return signals
	}

	ev.Overrides.Apply(&branch.State)
	if def, ok := e.catalog.Get(ev.Name); ok {
		e.catalog.ApplyEffects(def, &branch.State, e.rng)
	}

	state := branch.State.Clone()
	signals = append(signals, models.Signal{
		Kind:       models.SignalStateChanged,
		BranchID:   targetID,
		SiblingID:  siblingID,
		Event:      &fired,
		State:      &state,
		MonthIndex: ev.MonthIndex,
		At:         now,
	})

	e.logger.Info("event triggered", map[string]interface{}{
		"event":  ev.Name,
		"branch": targetID,
		"split":  ev.CausesSplit,
		"month":  models.MonthLabel(ev.MonthIndex),
	})
	return signals
}

// AccrueWages credits one month of wage per month boundary crossed since the
// previous call. The first call only records the current month.
func (e *TriggerEngine) AccrueWages(cursor float64) int {
	month := e.timeline.MonthIndexAt(cursor)
	if !e.hasMonth {
		e.lastMonth, e.hasMonth = month, true
		return 0
	}

	crossed := month - e.lastMonth
	e.lastMonth = month
	for i := 0; i < crossed; i++ {
		e.store.AddMonthlyWage()
	}
	return max(crossed, 0)
}

// PruneReactions drops reactions that have outlived their duration.
func (e *TriggerEngine) PruneReactions(cursor float64) {
	kept := e.reactions[:0]
	for _, r := range e.reactions {
		if !r.Expired(cursor) {
			kept = append(kept, r)
		}
	}
	clear(e.reactions[len(kept):])
	e.reactions = kept
}

// Reset forgets every event and reaction. The wage cadence restarts at cursor.
func (e *TriggerEngine) Reset(cursor float64) {
	e.events = nil
	e.reactions = nil
	e.lastMonth, e.hasMonth = e.timeline.MonthIndexAt(cursor), true
}

// Events copies every armed or triggered event.
func (e *TriggerEngine) Events() []models.GameEvent {
	out := make([]models.GameEvent, len(e.events))
	for i, ev := range e.events {
		out[i] = *ev
	}
	return out
}

// Reactions copies the active reactions.
func (e *TriggerEngine) Reactions() []models.Reaction {
	return append([]models.Reaction(nil), e.reactions...)
}

// PendingCount is the number of armed, not yet triggered events.
func (e *TriggerEngine) PendingCount() int {
	n := 0
	for _, ev := range e.events {
		if !ev.Triggered {
			n++
		}
	}
	return n
}
