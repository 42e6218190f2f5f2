package sched

import "encoding/json"

// ScheduleKind defines how a job's due time is determined.
type ScheduleKind string

const (
	// ScheduleEvery recurs at a fixed interval aligned to an anchor timestamp.
	ScheduleEvery ScheduleKind = "every"
	// ScheduleCron uses a standard 5-field cron expression.
	ScheduleCron ScheduleKind = "cron"
	// ScheduleAt fires once at a specific timestamp.
	ScheduleAt ScheduleKind = "at"
)

// Schedule is a tagged union; Kind selects which of the remaining fields are
// meaningful. All timestamps are Unix milliseconds.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// every
	IntervalMs int64 `json:"intervalMs,omitempty"`
	AnchorMs   int64 `json:"anchorMs,omitempty"`

	// cron
	Expr string `json:"expr,omitempty"`

	// at
	DueMs int64 `json:"dueMs,omitempty"`
}

// ActiveHours restricts firing to a daily time-of-day window. Start equal to
// end disables the window; start greater than end wraps past midnight.
type ActiveHours struct {
	StartMinuteOfDay int    `json:"startMinuteOfDay"`
	EndMinuteOfDay   int    `json:"endMinuteOfDay"`
	Timezone         string `json:"timezone,omitempty"` // IANA name; empty means local
}

// Priority is a hint carried through to the host application; it has no
// effect on scheduling order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Mode controls how aggressively the watchdog timer ticks. It affects
// delivery latency only, never correctness.
type Mode string

const (
	ModeEco        Mode = "eco"
	ModeBalanced   Mode = "balanced"
	ModeAggressive Mode = "aggressive"
)

// WakeSource tags what triggered an evaluation pass.
type WakeSource string

const (
	SourceWatchdog   WakeSource = "watchdog"
	SourceForeground WakeSource = "foreground"
	SourceBackground WakeSource = "background"
	SourcePower      WakeSource = "power_connected"
	SourceManual     WakeSource = "manual"
)

// Job describes a single scheduled notification.
type Job struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Enabled          bool            `json:"enabled"`
	Schedule         Schedule        `json:"schedule"`
	ActiveHours      *ActiveHours    `json:"activeHours,omitempty"`
	RequiresNetwork  bool            `json:"requiresNetwork"`
	RequiresCharging bool            `json:"requiresCharging"`
	Priority         Priority        `json:"priority"`
	Payload          json.RawMessage `json:"payload,omitempty"` // opaque, round-tripped verbatim

	// --- runtime state ---
	LastFiredAt      *int64 `json:"lastFiredAt,omitempty"`
	NextDueAt        *int64 `json:"nextDueAt,omitempty"` // nil means no future occurrence
	ConsecutiveSkips int    `json:"consecutiveSkips"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
}

// FiredEvent records one job notification.
type FiredEvent struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	FiredAt int64           `json:"firedAt"`
	Source  WakeSource      `json:"source"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SkipReason explains why a due job was withheld this round.
type SkipReason string

const (
	SkipPaused           SkipReason = "paused"
	SkipOutsideHours     SkipReason = "outside_active_hours"
	SkipRequiresNetwork  SkipReason = "requires_network"
	SkipRequiresCharging SkipReason = "requires_charging"
)

// SkipEvent records one withheld notification. Skips are informational and
// never persisted.
type SkipEvent struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Reason SkipReason `json:"reason"`
}

// OverdueJob is one entry of the aggregate overdue notification emitted on
// app-foreground resume.
type OverdueJob struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OverdueMs int64  `json:"overdueMs"`
}

// Status is the snapshot returned by the facade's status operation.
type Status struct {
	Paused      bool           `json:"paused"`
	Mode        Mode           `json:"mode"`
	Platform    string         `json:"platform"`
	EnabledJobs int            `json:"enabledJobs"`
	NextDueAt   *int64         `json:"nextDueAt,omitempty"`
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
}

func validMode(m Mode) bool {
	switch m {
	case ModeEco, ModeBalanced, ModeAggressive:
		return true
	}
	return false
}

func validPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

func ptrMs(v int64) *int64 { return &v }
