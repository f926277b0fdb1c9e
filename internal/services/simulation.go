// internal/services/simulation.go
package services

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Corphon/LifeBranches/internal/config"
	apperrors "github.com/Corphon/LifeBranches/internal/errors"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/utils"
)

type subscriber struct {
	name string
	ch   chan models.Signal
}

// Simulation owns one timeline: its branches, queue, trigger engine and
// cursor. Every mutation, ticks included, runs under one mutex.
type Simulation struct {
	mu sync.Mutex

	cfg      *config.SimulationConfig
	timeline Timeline
	catalog  *Catalog
	store    *BranchStore
	queue    *EventQueue
	engine   *TriggerEngine
	rng      *rand.Rand

	cursor float64
	paused bool

	subs    []*subscriber
	logger  *utils.Logger
	metrics *utils.MetricsCollector
}

// NewSimulation builds a seeded simulation. A zero cfg.Seed seeds the random
// source from the clock.
func NewSimulation(cfg *config.SimulationConfig, catalog *Catalog, logger *utils.Logger, metrics *utils.MetricsCollector) *Simulation {
	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	timeline := NewTimeline(cfg)
	store := NewBranchStore(cfg)

	s := &Simulation{
		cfg:      cfg,
		timeline: timeline,
		catalog:  catalog,
		store:    store,
		queue:    NewEventQueue(catalog, timeline, logger.With("queue")),
		engine:   NewTriggerEngine(catalog, store, timeline, rng, cfg.ReactionDuration, logger.With("trigger")),
		rng:      rng,
		cursor:   timeline.InitialCursor(),
		logger:   logger,
		metrics:  metrics,
	}
	store.Seed(s.cursor)
	s.updateGauges()
	return s
}

// Tick advances the simulation by one frame: cursor, triggers, wages,
// materialization, reaction pruning, then signal delivery.
func (s *Simulation) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return
	}
	start := time.Now()

	s.cursor -= s.cfg.CursorSpeed

	signals := s.engine.Evaluate(s.cursor)
	for _, sig := range signals {
		if sig.Kind != models.SignalEventTriggered {
			continue
		}
		s.metrics.IncrementCounter(utils.MetricEventsTriggered)
		if sig.Event != nil && sig.Event.CausesSplit {
			s.metrics.IncrementCounter(utils.MetricSplits)
		}
	}

	if n := s.engine.AccrueWages(s.cursor); n > 0 {
		s.metrics.AddCounter(utils.MetricWageAccruals, int64(n))
	}

	created, dropped := s.queue.Materialize(s.cursor, s.store)
	s.engine.Arm(created...)
	s.metrics.AddCounter(utils.MetricEventsMaterialized, int64(len(created)))
	now := time.Now()
	for i := range dropped {
		ev := dropped[i]
		s.metrics.IncrementCounter(utils.MetricEventsDropped)
		signals = append(signals, models.Signal{
			Kind:       models.SignalEventDropped,
			BranchID:   ev.BranchID,
			Scheduled:  &ev,
			MonthIndex: ev.MonthIndex,
			At:         now,
		})
	}

	s.engine.PruneReactions(s.cursor)

	s.metrics.IncrementCounter(utils.MetricTicks)
	s.metrics.RecordHistogram(utils.HistogramTickMicros, time.Since(start).Microseconds())
	s.updateGauges()
	s.publish(signals...)
}

// Run ticks every cfg.TickInterval until ctx is done.
func (s *Simulation) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("simulation started", map[string]interface{}{
		"tick_interval": s.cfg.TickInterval.String(),
		"cursor_speed":  s.cfg.CursorSpeed,
	})
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulation stopped", nil)
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// AdvanceMonths ticks until the stickman has crossed n more month boundaries.
// Pausing is ignored for the duration of the call.
func (s *Simulation) AdvanceMonths(n int) {
	s.mu.Lock()
	target := s.timeline.MonthIndexAt(s.cursor) + n
	wasPaused := s.paused
	s.paused = false
	s.mu.Unlock()

	for {
		s.mu.Lock()
		reached := s.timeline.MonthIndexAt(s.cursor) >= target
		s.mu.Unlock()
		if reached {
			break
		}
		s.Tick()
	}

	s.mu.Lock()
	s.paused = wasPaused
	s.mu.Unlock()
}

// Pause stops cursor movement, triggering and wage accrual.
func (s *Simulation) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume continues a paused simulation with its state intact.
func (s *Simulation) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports whether the simulation is paused.
func (s *Simulation) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Schedule enqueues an event for a later tick.
func (s *Simulation) Schedule(req ScheduleRequest) (*models.ScheduledEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(req)
}

func (s *Simulation) scheduleLocked(req ScheduleRequest) (*models.ScheduledEvent, error) {
	ev, err := s.queue.Schedule(req, s.cursor)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementCounter(utils.MetricEventsScheduled)
	s.updateGauges()
	return ev, nil
}

// SplitAll splits every live branch.
func (s *Simulation) SplitAll() []SplitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := s.store.SplitAll(s.cursor)
	s.metrics.AddCounter(utils.MetricSplits, int64(len(results)))
	s.updateGauges()

	now := time.Now()
	signals := make([]models.Signal, 0, len(results))
	for _, r := range results {
		signals = append(signals, s.stateSignal(r, now))
	}
	s.publish(signals...)
	return results
}

// SplitOne splits the branch with id, or a uniformly random live branch
// when id is nil.
func (s *Simulation) SplitOne(id *int) (SplitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target int
	if id != nil {
		target = *id
	} else {
		target = s.randomBranchLocked()
	}

	res, err := s.store.SplitOne(target, s.cursor)
	if err != nil {
		return SplitResult{}, err
	}
	s.metrics.IncrementCounter(utils.MetricSplits)
	s.updateGauges()
	s.publish(s.stateSignal(res, time.Now()))
	return res, nil
}

func (s *Simulation) stateSignal(r SplitResult, now time.Time) models.Signal {
	sig := models.Signal{
		Kind:       models.SignalStateChanged,
		BranchID:   r.KeptID,
		SiblingID:  r.SiblingID,
		MonthIndex: s.timeline.MonthIndexAt(s.cursor),
		At:         now,
	}
	if b, ok := s.store.Get(r.KeptID); ok {
		state := b.State.Clone()
		sig.State = &state
	}
	return sig
}

// GenerateRandomEvent schedules a uniformly random catalog event on a random
// live branch one month ahead of the current month.
func (s *Simulation) GenerateRandomEvent() (*models.ScheduledEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateLocked(s.catalog.Names(), models.SourceRandom)
}

// GenerateForcedSplitEvent is GenerateRandomEvent restricted to events that
// split the branch.
func (s *Simulation) GenerateForcedSplitEvent() (*models.ScheduledEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateLocked(s.catalog.SplitNames(), models.SourceForced)
}

func (s *Simulation) generateLocked(names []string, source string) (*models.ScheduledEvent, error) {
	if len(names) == 0 {
		return nil, apperrors.NewValidationError("no eligible events in catalog", apperrors.ErrUnknownEvent)
	}
	name := names[s.rng.IntN(len(names))]
	year, month := models.YearMonth(s.timeline.MonthIndexAt(s.cursor) + 1)

	return s.scheduleLocked(ScheduleRequest{
		EventName: name,
		Year:      year,
		Month:     month,
		BranchID:  s.randomBranchLocked(),
		Source:    source,
	})
}

func (s *Simulation) randomBranchLocked() int {
	ids := s.store.IDs()
	return ids[s.rng.IntN(len(ids))]
}

// Reset discards queued events, game events and reactions and reseeds the
// branches at the current cursor.
func (s *Simulation) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue.Clear()
	s.engine.Reset(s.cursor)
	released := s.store.Reset(s.cursor)
	s.updateGauges()

	now := time.Now()
	month := s.timeline.MonthIndexAt(s.cursor)
	signals := []models.Signal{{Kind: models.SignalReset, MonthIndex: month, At: now}}
	if len(released) > 0 {
		signals = append(signals, models.Signal{
			Kind:       models.SignalAvatarsReleased,
			Avatars:    released,
			MonthIndex: month,
			At:         now,
		})
	}
	s.logger.Info("simulation reset", map[string]interface{}{"released_avatars": len(released)})
	s.publish(signals...)
}

// SetProfile replaces the onboarding profile and reseeds.
func (s *Simulation) SetProfile(p *models.Profile) {
	s.mu.Lock()
	s.store.SetProfile(p)
	s.mu.Unlock()
	s.Reset()
}

// Snapshot copies the current state for renderers and the API.
func (s *Simulation) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, end := s.timeline.VisibleRange(s.cursor)
	month := s.timeline.MonthIndexAt(s.cursor)
	return models.Snapshot{
		Cursor:      s.cursor,
		StickmanX:   s.timeline.StickmanWorldX(s.cursor),
		MonthIndex:  month,
		MonthLabel:  models.MonthLabel(month),
		Paused:      s.paused,
		ViewStart:   start,
		ViewEnd:     end,
		Branches:    s.store.Views(s.cursor),
		Events:      s.engine.Events(),
		Reactions:   s.engine.Reactions(),
		QueueLength: s.queue.Len(),
		TakenAt:     time.Now(),
	}
}

// Pending returns the queued, not yet materialized events.
func (s *Simulation) Pending() []models.ScheduledEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Pending()
}

// Catalog returns the immutable event catalog.
func (s *Simulation) Catalog() *Catalog {
	return s.catalog
}

// Timeline returns the geometry the simulation runs on.
func (s *Simulation) Timeline() Timeline {
	return s.timeline
}

// Subscribe registers a named signal consumer. Delivery never blocks the
// tick: when the buffer is full the signal is dropped and logged.
func (s *Simulation) Subscribe(name string, buffer int) <-chan models.Signal {
	if buffer <= 0 {
		buffer = s.cfg.SignalBuffer
	}
	sub := &subscriber{name: name, ch: make(chan models.Signal, buffer)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	return sub.ch
}

// Unsubscribe removes and closes the consumer's channel.
func (s *Simulation) Unsubscribe(ch <-chan models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if (<-chan models.Signal)(sub.ch) == ch {
			close(sub.ch)
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// publish must be called with s.mu held.
func (s *Simulation) publish(signals ...models.Signal) {
	for _, sig := range signals {
		for _, sub := range s.subs {
			select {
			case sub.ch <- sig:
			default:
				s.metrics.IncrementCounter(utils.MetricSignalsDropped)
				s.logger.Warn("signal dropped, subscriber busy", map[string]interface{}{
					"subscriber": sub.name,
					"type":       sig.Kind,
				})
			}
		}
	}
}

func (s *Simulation) updateGauges() {
	s.metrics.SetGauge(utils.GaugeBranchesLive, int64(s.store.Len()))
	s.metrics.SetGauge(utils.GaugeQueueLength, int64(s.queue.Len()))
}
