// internal/models/simulation.go
package models

import "time"

// Profile holds the onboarding answers used to derive initial branch state.
type Profile struct {
	Name         string `json:"name" yaml:"name"`
	Education    string `json:"education" yaml:"education"` // high_school, bachelor, master, doctorate
	CareerLength int    `json:"career_length" yaml:"career_length"`
	Age          int    `json:"age" yaml:"age"`
	FamilyStatus string `json:"family_status" yaml:"family_status"`
	Children     int    `json:"children" yaml:"children"`
}

// SignalKind 核心向外部适配器发出的消息类型
type SignalKind string

const (
	SignalStateChanged    SignalKind = "state_changed"
	SignalEventTriggered  SignalKind = "event_triggered"
	SignalPlayNarration   SignalKind = "play_narration"
	SignalAvatarsReleased SignalKind = "avatars_released"
	SignalEventDropped    SignalKind = "event_dropped"
	SignalReset           SignalKind = "reset"
)

// Signal is an outbound, fire-and-forget message produced during a tick.
// Adapters (websocket, audio, commentary) consume it; the core never waits.
type Signal struct {
	Kind          SignalKind      `json:"type"`
	BranchID      int             `json:"branch_id"`
	SiblingID     int             `json:"sibling_id,omitempty"`
	Event         *GameEvent      `json:"event,omitempty"`
	Scheduled     *ScheduledEvent `json:"scheduled,omitempty"`
	State         *LifeState      `json:"state,omitempty"`
	AudioID       string          `json:"audio_id,omitempty"`
	AudioDuration float64         `json:"audio_duration,omitempty"`
	Avatars       []int           `json:"avatars,omitempty"`
	MonthIndex    int             `json:"month_index"`
	At            time.Time       `json:"at"`
}

// Snapshot is a read-only copy of the simulation for renderers and the API.
type Snapshot struct {
	Cursor      float64      `json:"cursor"`
	StickmanX   float64      `json:"stickman_x"`
	MonthIndex  int          `json:"month_index"`
	MonthLabel  string       `json:"month_label"`
	Paused      bool         `json:"paused"`
	ViewStart   float64      `json:"view_start"`
	ViewEnd     float64      `json:"view_end"`
	Branches    []BranchView `json:"branches"`
	Events      []GameEvent  `json:"events"`
	Reactions   []Reaction   `json:"reactions"`
	QueueLength int          `json:"queue_length"`
	TakenAt     time.Time    `json:"taken_at"`
}

// Commentary is a narrated remark about a triggered event.
type Commentary struct {
	BranchID   int       `json:"branch_id"`
	EventName  string    `json:"event_name"`
	MonthLabel string    `json:"month_label"`
	Text       string    `json:"text"`
	Severity   int       `json:"severity"`
	Enriched   bool      `json:"enriched"`
	CreatedAt  time.Time `json:"created_at"`
}
