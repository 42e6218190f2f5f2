package sched

import (
	"fmt"
	"strings"
	"time"

	"github.com/tickloop/tickloop/internal/storage"
)

// LoadJobsFromStore reads the persisted snapshot directly, for inspection
// tooling that runs without a live scheduler.
func LoadJobsFromStore(kv storage.KV) []Job {
	store := NewStore(kv)
	store.Load()
	return store.List()
}

// FormatJobList renders jobs as a human-readable listing.
func FormatJobList(jobs []Job) string {
	if len(jobs) == 0 {
		return "no jobs registered\n"
	}

	var b strings.Builder
	for _, j := range jobs {
		state := "enabled"
		if !j.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "%s  %s  [%s, %s]\n", j.ID, j.Name, state, describeSchedule(j.Schedule))
		fmt.Fprintf(&b, "    next: %s  last: %s  skips: %d\n",
			formatMs(j.NextDueAt), formatMs(j.LastFiredAt), j.ConsecutiveSkips)
	}
	return b.String()
}

func describeSchedule(s Schedule) string {
	switch s.Kind {
	case ScheduleEvery:
		return fmt.Sprintf("every %s", time.Duration(s.IntervalMs)*time.Millisecond)
	case ScheduleCron:
		return fmt.Sprintf("cron %q", s.Expr)
	case ScheduleAt:
		return fmt.Sprintf("at %s", formatMs(&s.DueMs))
	default:
		return string(s.Kind)
	}
}

func formatMs(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return time.UnixMilli(*ms).Format(time.RFC3339)
}
