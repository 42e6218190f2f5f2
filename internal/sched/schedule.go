package sched

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser is a standard 5-field cron expression parser (minute hour dom month dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ComputeNextDue returns the next instant the schedule is due, strictly after
// nowMs. ok is false when the schedule has no future occurrence: an elapsed
// one-shot, or a malformed spec. Callers treat absent as "nothing to do",
// never as an error.
func ComputeNextDue(s Schedule, nowMs int64) (next int64, ok bool) {
	switch s.Kind {
	case ScheduleEvery:
		if s.IntervalMs <= 0 {
			return 0, false
		}
		if nowMs < s.AnchorMs {
			return s.AnchorMs, true
		}
		// Smallest anchor-aligned instant strictly greater than nowMs.
		// Alignment survives arbitrarily long gaps: the result is the next
		// future slot, never a backlog of missed ones.
		k := (nowMs-s.AnchorMs)/s.IntervalMs + 1
		return s.AnchorMs + k*s.IntervalMs, true

	case ScheduleCron:
		sched, err := cronParser.Parse(s.Expr)
		if err != nil {
			return 0, false
		}
		t := sched.Next(time.UnixMilli(nowMs))
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true

	case ScheduleAt:
		if s.DueMs > nowMs {
			return s.DueMs, true
		}
		// Already elapsed; one-shots never re-fire.
		return 0, false

	default:
		return 0, false
	}
}

// normalize re-derives the anchor from now when a recurring schedule does not
// carry an explicit one.
func (s Schedule) normalize(nowMs int64) Schedule {
	if s.Kind == ScheduleEvery && s.AnchorMs == 0 {
		s.AnchorMs = nowMs
	}
	return s
}

// validate checks the schedule against §4.1 constraints plus the profile's
// minimum interval.
func (s Schedule) validate(minIntervalMs int64) error {
	switch s.Kind {
	case ScheduleEvery:
		if s.IntervalMs <= 0 {
			return fmt.Errorf("%w: every interval must be positive, got %d", ErrInvalid, s.IntervalMs)
		}
		if minIntervalMs > 0 && s.IntervalMs < minIntervalMs {
			return fmt.Errorf("%w: every interval %dms below platform minimum %dms", ErrInvalid, s.IntervalMs, minIntervalMs)
		}
		return nil
	case ScheduleCron:
		if _, err := cronParser.Parse(s.Expr); err != nil {
			return fmt.Errorf("%w: parse cron expression %q: %v", ErrInvalid, s.Expr, err)
		}
		return nil
	case ScheduleAt:
		if s.DueMs <= 0 {
			return fmt.Errorf("%w: at schedule requires dueMs", ErrInvalid)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown schedule kind %q", ErrInvalid, s.Kind)
	}
}
