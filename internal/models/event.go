// internal/models/event.go
package models

// EffectKind names one mutation an event applies to a branch.
type EffectKind string

const (
	EffectWagePercent   EffectKind = "wage_percent"
	EffectMoneyDelta    EffectKind = "money_delta"
	EffectSetMarital    EffectKind = "set_marital"
	EffectSetChildren   EffectKind = "set_children"
	EffectAddChildren   EffectKind = "add_children"
	EffectReduceLoan    EffectKind = "reduce_loan"
	EffectTakeLoan      EffectKind = "take_loan"
	EffectSetHealth     EffectKind = "set_health"
	EffectSetEmployment EffectKind = "set_employment"
)

// Effect is one entry of an event's mutation list. Which fields are read
// depends on Kind: ranges use Min/Max (inclusive), counts use Count, loans use
// Amount, and status changes use Value with an optional When guard.
type Effect struct {
	Kind   EffectKind `json:"kind" yaml:"kind"`
	Min    int64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max    int64      `json:"max,omitempty" yaml:"max,omitempty"`
	Count  int        `json:"count,omitempty" yaml:"count,omitempty"`
	Amount int64      `json:"amount,omitempty" yaml:"amount,omitempty"`
	Value  string     `json:"value,omitempty" yaml:"value,omitempty"`
	When   []string   `json:"when,omitempty" yaml:"when,omitempty"`
}

// ReactionArt is what the renderer shows when an event fires.
type ReactionArt struct {
	Emoji string `json:"emoji,omitempty" yaml:"emoji,omitempty"`
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// EventDefinition 事件目录条目
type EventDefinition struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	CausesSplit bool        `json:"causes_split" yaml:"causes_split"`
	Reaction    ReactionArt `json:"reaction" yaml:"reaction"`
	Severity    int         `json:"severity" yaml:"severity"`
	Effects     []Effect    `json:"effects,omitempty" yaml:"effects,omitempty"`
}

// Overrides carries externally supplied state for a scheduled event.
// Nil fields are left untouched when applied.
type Overrides struct {
	Name              *string        `json:"name,omitempty"`
	MonthlyWage       *int64         `json:"monthly_wage,omitempty"`
	CurrentLoan       *int64         `json:"current_loan,omitempty"`
	MaritalStatus     *MaritalStatus `json:"marital_status,omitempty"`
	ChildCount        *int           `json:"child_count,omitempty"`
	HealthStatus      *string        `json:"health_status,omitempty"`
	NarrationAudioID  string         `json:"narration_audio_id,omitempty"`
	NarrationDuration float64        `json:"narration_duration,omitempty"`
}

// Apply writes every present field onto state.
func (o *Overrides) Apply(state *LifeState) {
	if o == nil || state == nil {
		return
	}
	if o.Name != nil {
		state.Name = *o.Name
	}
	if o.MonthlyWage != nil {
		state.MonthlyWage = max(*o.MonthlyWage, 0)
	}
	if o.CurrentLoan != nil {
		state.CurrentLoan = max(*o.CurrentLoan, 0)
	}
	if o.MaritalStatus != nil {
		state.MaritalStatus = *o.MaritalStatus
	}
	if o.ChildCount != nil {
		state.ChildCount = max(*o.ChildCount, 0)
	}
	if o.HealthStatus != nil {
		state.HealthStatus = *o.HealthStatus
	}
}

// HasNarration reports whether a narration clip should play on trigger.
func (o *Overrides) HasNarration() bool {
	return o != nil && o.NarrationAudioID != ""
}

// Event sources recorded on scheduled events.
const (
	SourceRelay  = "relay"
	SourceRandom = "random"
	SourceForced = "forced"
	SourceAPI    = "api"
)

// ScheduledEvent 已请求但尚未进入时间线的事件
type ScheduledEvent struct {
	BranchID   int        `json:"branch_id"`
	EventName  string     `json:"event_name"`
	Year       int        `json:"year"`
	Month      int        `json:"month"`
	MonthIndex int        `json:"month_index"`
	Overrides  *Overrides `json:"overrides,omitempty"`
	EnqueuedAt float64    `json:"enqueued_at"`
	Source     string     `json:"source"`
	Text       string     `json:"text,omitempty"`
}

// GameEvent 已布置在时间线上的事件
type GameEvent struct {
	ID          int64       `json:"id"`
	BranchID    int         `json:"branch_id"`
	MonthIndex  int         `json:"month_index"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	CausesSplit bool        `json:"causes_split"`
	Reaction    ReactionArt `json:"reaction"`
	Triggered   bool        `json:"triggered"`
	TriggeredAt float64     `json:"triggered_at,omitempty"`
	Overrides   *Overrides  `json:"overrides,omitempty"`
	Text        string      `json:"text,omitempty"`
}

// Reaction is a short-lived overlay shown when an event fires.
type Reaction struct {
	BranchID    int         `json:"branch_id"`
	EventName   string      `json:"event_name"`
	Art         ReactionArt `json:"art"`
	StartCursor float64     `json:"start_cursor"`
	Duration    float64     `json:"duration"`
}

// Expired reports whether the reaction has run its course at cursor.
// The cursor decreases over time, so elapsed distance is start - cursor.
func (r Reaction) Expired(cursor float64) bool {
	return r.StartCursor-cursor > r.Duration
}
