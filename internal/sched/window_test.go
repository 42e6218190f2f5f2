package sched

import (
	"testing"
	"time"
)

// utcMs builds a timestamp at the given wall-clock time in UTC.
func utcMs(hour, min int) int64 {
	return time.Date(2026, 6, 10, hour, min, 0, 0, time.UTC).UnixMilli()
}

func TestWithinActiveHours_NilAndDisabled(t *testing.T) {
	if !WithinActiveHours(nil, utcMs(3, 0)) {
		t.Error("nil window must be inside")
	}
	w := &ActiveHours{StartMinuteOfDay: 600, EndMinuteOfDay: 600, Timezone: "UTC"}
	if !WithinActiveHours(w, utcMs(3, 0)) {
		t.Error("start == end disables the window, not zero-width")
	}
}

func TestWithinActiveHours_SameDay(t *testing.T) {
	// 09:00–18:00
	w := &ActiveHours{StartMinuteOfDay: 540, EndMinuteOfDay: 1080, Timezone: "UTC"}

	cases := []struct {
		hour, min int
		want      bool
	}{
		{8, 59, false},
		{9, 0, true}, // inclusive start
		{12, 30, true},
		{17, 59, true},
		{18, 0, false}, // exclusive end
		{23, 0, false},
	}
	for _, tc := range cases {
		if got := WithinActiveHours(w, utcMs(tc.hour, tc.min)); got != tc.want {
			t.Errorf("%02d:%02d: got %v, want %v", tc.hour, tc.min, got, tc.want)
		}
	}
}

func TestWithinActiveHours_Overnight(t *testing.T) {
	// 22:00–06:00 wraps past midnight.
	w := &ActiveHours{StartMinuteOfDay: 1320, EndMinuteOfDay: 360, Timezone: "UTC"}

	cases := []struct {
		hour, min int
		want      bool
	}{
		{0, 30, true},
		{5, 59, true},
		{6, 0, false},
		{10, 0, false},
		{21, 59, false},
		{22, 0, true},
		{23, 45, true},
	}
	for _, tc := range cases {
		if got := WithinActiveHours(w, utcMs(tc.hour, tc.min)); got != tc.want {
			t.Errorf("%02d:%02d: got %v, want %v", tc.hour, tc.min, got, tc.want)
		}
	}
}

func TestWithinActiveHours_Timezone(t *testing.T) {
	// 09:00–18:00 in Tokyo; 01:00 UTC is 10:00 JST.
	w := &ActiveHours{StartMinuteOfDay: 540, EndMinuteOfDay: 1080, Timezone: "Asia/Tokyo"}
	if !WithinActiveHours(w, utcMs(1, 0)) {
		t.Error("01:00 UTC should be inside a Tokyo business-hours window")
	}
	if WithinActiveHours(w, utcMs(12, 0)) {
		t.Error("12:00 UTC (21:00 JST) should be outside")
	}
}

func TestWithinActiveHours_FailOpen(t *testing.T) {
	malformed := []*ActiveHours{
		{StartMinuteOfDay: -5, EndMinuteOfDay: 100},
		{StartMinuteOfDay: 100, EndMinuteOfDay: 5000},
		{StartMinuteOfDay: 100, EndMinuteOfDay: 200, Timezone: "Not/AZone"},
	}
	for i, w := range malformed {
		if !WithinActiveHours(w, utcMs(23, 0)) {
			t.Errorf("case %d: malformed window must fail open", i)
		}
	}
}

func TestActiveHoursValidate(t *testing.T) {
	if err := (&ActiveHours{StartMinuteOfDay: 540, EndMinuteOfDay: 1080}).validate(); err != nil {
		t.Errorf("valid window rejected: %v", err)
	}
	if err := (&ActiveHours{StartMinuteOfDay: 1440, EndMinuteOfDay: 10}).validate(); err == nil {
		t.Error("out-of-range start must be rejected")
	}
	if err := (&ActiveHours{Timezone: "Not/AZone"}).validate(); err == nil {
		t.Error("unknown timezone must be rejected")
	}
}
