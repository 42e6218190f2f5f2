package sched

import "time"

// WithinActiveHours reports whether nowMs falls inside the job's daily
// window. It is total: a nil window, a disabled window (start == end) and any
// malformed window all return true. A broken constraint must never silently
// block a job forever, so this fails open.
func WithinActiveHours(w *ActiveHours, nowMs int64) bool {
	if w == nil {
		return true
	}

	start, end := w.StartMinuteOfDay, w.EndMinuteOfDay
	if start == end {
		return true // disabled, not zero-width
	}
	if start < 0 || start > 1439 || end < 0 || end > 1439 {
		return true
	}

	loc := time.Local
	if w.Timezone != "" {
		l, err := time.LoadLocation(w.Timezone)
		if err != nil {
			return true
		}
		loc = l
	}

	t := time.UnixMilli(nowMs).In(loc)
	mins := t.Hour()*60 + t.Minute()

	if start < end {
		// Same-day window: start inclusive, end exclusive.
		return mins >= start && mins < end
	}
	// Overnight window wrapping past midnight.
	return mins >= start || mins < end
}

// validate rejects out-of-range minutes and unknown timezones at the facade
// boundary. The evaluator itself stays fail-open for windows that arrive
// through the persisted blob.
func (w *ActiveHours) validate() error {
	if w == nil {
		return nil
	}
	if w.StartMinuteOfDay < 0 || w.StartMinuteOfDay > 1439 {
		return errMinuteRange("startMinuteOfDay", w.StartMinuteOfDay)
	}
	if w.EndMinuteOfDay < 0 || w.EndMinuteOfDay > 1439 {
		return errMinuteRange("endMinuteOfDay", w.EndMinuteOfDay)
	}
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			return errBadTimezone(w.Timezone, err)
		}
	}
	return nil
}
