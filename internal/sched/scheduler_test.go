package sched

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickloop/tickloop/internal/storage"
)

type captureBridge struct {
	fired   []FiredEvent
	skipped []SkipEvent
	overdue [][]OverdueJob
	status  []Status
}

func (b *captureBridge) JobFired(ev FiredEvent)          { b.fired = append(b.fired, ev) }
func (b *captureBridge) JobSkipped(ev SkipEvent)         { b.skipped = append(b.skipped, ev) }
func (b *captureBridge) OverdueOnResume(js []OverdueJob) { b.overdue = append(b.overdue, js) }
func (b *captureBridge) StatusChanged(st Status)         { b.status = append(b.status, st) }

type fakeClock struct{ now int64 }

func (c *fakeClock) fn() func() int64 { return func() int64 { return c.now } }

func newTestScheduler(t *testing.T, kv storage.KV, bridge Bridge, clk *fakeClock) *Scheduler {
	t.Helper()
	s, err := NewScheduler(Options{
		Storage: kv,
		Bridge:  bridge,
		Clock:   clk.fn(),
	})
	require.NoError(t, err)
	return s
}

func TestScheduler_Register_Validation(t *testing.T) {
	clk := &fakeClock{now: 1000}
	s := newTestScheduler(t, storage.NewMemory(), nil, clk)
	ctx := context.Background()

	cases := []struct {
		name string
		spec JobSpec
	}{
		{"empty name", JobSpec{Name: "   ", Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 1000}}},
		{"zero interval", JobSpec{Name: "x", Schedule: Schedule{Kind: ScheduleEvery}}},
		{"missing dueMs", JobSpec{Name: "x", Schedule: Schedule{Kind: ScheduleAt}}},
		{"bad cron", JobSpec{Name: "x", Schedule: Schedule{Kind: ScheduleCron, Expr: "nope"}}},
		{"unknown kind", JobSpec{Name: "x", Schedule: Schedule{Kind: "hourly"}}},
		{"bad priority", JobSpec{Name: "x", Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 1000}, Priority: "urgent"}},
		{"bad window", JobSpec{
			Name:        "x",
			Schedule:    Schedule{Kind: ScheduleEvery, IntervalMs: 1000},
			ActiveHours: &ActiveHours{StartMinuteOfDay: 9999},
		}},
	}
	for _, tc := range cases {
		_, err := s.Register(ctx, tc.spec)
		assert.ErrorIs(t, err, ErrInvalid, tc.name)
	}
	assert.Empty(t, s.List(), "rejected registrations must not mutate state")
}

func TestScheduler_Register_MobileProfileMinimum(t *testing.T) {
	clk := &fakeClock{now: 1000}
	s, err := NewScheduler(Options{
		Storage: storage.NewMemory(),
		Profile: ProfileMobile,
		Clock:   clk.fn(),
	})
	require.NoError(t, err)

	_, err = s.Register(context.Background(), JobSpec{
		Name:     "too-fast",
		Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 30_000},
	})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.Register(context.Background(), JobSpec{
		Name:     "ok",
		Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 60_000},
	})
	assert.NoError(t, err)
}

func TestScheduler_Register_EagerDueTime(t *testing.T) {
	clk := &fakeClock{now: 10_000}
	s := newTestScheduler(t, storage.NewMemory(), nil, clk)

	id, err := s.Register(context.Background(), JobSpec{
		Name:     "pulse",
		Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 5_000},
		Payload:  json.RawMessage(`{"k":"v"}`),
	})
	require.NoError(t, err)

	jobs := s.List()
	require.Len(t, jobs, 1)
	j := jobs[0]
	assert.Equal(t, id, j.ID)
	assert.True(t, j.Enabled)
	assert.Equal(t, PriorityNormal, j.Priority, "priority defaults to normal")
	assert.Equal(t, int64(10_000), j.Schedule.AnchorMs, "anchor derived from now")
	require.NotNil(t, j.NextDueAt)
	assert.Equal(t, int64(15_000), *j.NextDueAt)
}

func TestScheduler_Update(t *testing.T) {
	clk := &fakeClock{now: 1000}
	s := newTestScheduler(t, storage.NewMemory(), nil, clk)
	ctx := context.Background()

	err := s.Update(ctx, "ghost", JobUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := s.Register(ctx, JobSpec{
		Name:        "orig",
		Schedule:    Schedule{Kind: ScheduleEvery, IntervalMs: 1000},
		ActiveHours: &ActiveHours{StartMinuteOfDay: 540, EndMinuteOfDay: 1080},
	})
	require.NoError(t, err)

	// Invalid update leaves the job untouched.
	bad := ""
	err = s.Update(ctx, id, JobUpdate{Name: &bad})
	assert.ErrorIs(t, err, ErrInvalid)
	got, _ := s.store.Get(id)
	assert.Equal(t, "orig", got.Name)

	// Schedule change recomputes the due time from the new now.
	clk.now = 40_000
	newSched := Schedule{Kind: ScheduleEvery, IntervalMs: 2000}
	name := "renamed"
	var cleared *ActiveHours
	err = s.Update(ctx, id, JobUpdate{
		Name:        &name,
		Schedule:    &newSched,
		ActiveHours: &cleared,
	})
	require.NoError(t, err)

	got, _ = s.store.Get(id)
	assert.Equal(t, "renamed", got.Name)
	assert.Nil(t, got.ActiveHours, "window cleared")
	assert.Equal(t, int64(40_000), got.Schedule.AnchorMs)
	require.NotNil(t, got.NextDueAt)
	assert.Equal(t, int64(42_000), *got.NextDueAt)
}

func TestScheduler_Unregister_Idempotent(t *testing.T) {
	clk := &fakeClock{now: 1000}
	s := newTestScheduler(t, storage.NewMemory(), nil, clk)
	ctx := context.Background()

	id, err := s.Register(ctx, JobSpec{Name: "x", Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 1000}})
	require.NoError(t, err)

	s.Unregister(ctx, id)
	assert.Empty(t, s.List())
	s.Unregister(ctx, id) // no-op, no panic, no error surface
	s.Unregister(ctx, "never-existed")
}

func TestScheduler_TriggerNowWhilePaused(t *testing.T) {
	clk := &fakeClock{now: 1000}
	bridge := &captureBridge{}
	s := newTestScheduler(t, storage.NewMemory(), bridge, clk)
	ctx := context.Background()

	id, err := s.Register(ctx, JobSpec{Name: "forced", Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 60_000}})
	require.NoError(t, err)
	s.PauseAll(ctx)

	clk.now = 2000
	require.NoError(t, s.TriggerNow(ctx, id))
	require.Len(t, bridge.fired, 1)
	assert.Equal(t, SourceManual, bridge.fired[0].Source)
	assert.True(t, s.Status().Paused, "paused flag untouched")

	err = s.TriggerNow(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScheduler_PauseResume_Idempotent(t *testing.T) {
	clk := &fakeClock{now: 1000}
	bridge := &captureBridge{}
	s := newTestScheduler(t, storage.NewMemory(), bridge, clk)
	ctx := context.Background()

	s.PauseAll(ctx)
	s.PauseAll(ctx) // second call is a no-op beyond the flag already set
	assert.Len(t, bridge.status, 1)
	assert.True(t, bridge.status[0].Paused)

	s.ResumeAll(ctx)
	s.ResumeAll(ctx)
	assert.Len(t, bridge.status, 2)
	assert.False(t, bridge.status[1].Paused)
}

func TestScheduler_SetMode(t *testing.T) {
	clk := &fakeClock{now: 1000}
	s := newTestScheduler(t, storage.NewMemory(), nil, clk)
	ctx := context.Background()

	assert.ErrorIs(t, s.SetMode(ctx, "turbo"), ErrInvalid)
	require.NoError(t, s.SetMode(ctx, ModeEco))
	assert.Equal(t, ModeEco, s.Status().Mode)
}

func TestScheduler_Status(t *testing.T) {
	clk := &fakeClock{now: 1000}
	s := newTestScheduler(t, storage.NewMemory(), nil, clk)
	ctx := context.Background()

	_, err := s.Register(ctx, JobSpec{Name: "a", Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 10_000}})
	require.NoError(t, err)
	_, err = s.Register(ctx, JobSpec{Name: "b", Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 3_000}})
	require.NoError(t, err)

	st := s.Status()
	assert.Equal(t, 2, st.EnabledJobs)
	require.NotNil(t, st.NextDueAt)
	assert.Equal(t, int64(4_000), *st.NextDueAt, "earliest due across enabled jobs")
	assert.Equal(t, "generic", st.Platform)
	assert.NotNil(t, st.Diagnostics)
}

func TestScheduler_Status_CountsEnabledWithoutDueTime(t *testing.T) {
	clk := &fakeClock{now: 10_000}
	s := newTestScheduler(t, storage.NewMemory(), nil, clk)
	ctx := context.Background()

	// An at-schedule whose instant already elapsed registers enabled but has
	// no future occurrence.
	id, err := s.Register(ctx, JobSpec{Name: "late", Schedule: Schedule{Kind: ScheduleAt, DueMs: 5_000}})
	require.NoError(t, err)

	job, ok := s.store.Get(id)
	require.True(t, ok)
	assert.True(t, job.Enabled)
	require.Nil(t, job.NextDueAt)

	st := s.Status()
	assert.Equal(t, 1, st.EnabledJobs, "enabled jobs count regardless of due time")
	assert.Nil(t, st.NextDueAt)
}

func TestScheduler_PendingQueueAcrossContexts(t *testing.T) {
	kv := storage.NewMemory()
	ctx := context.Background()

	// Background context: no live bridge, a due job fires into the queue.
	bgClk := &fakeClock{now: 1000}
	bg := newTestScheduler(t, kv, nil, bgClk)
	_, err := bg.Register(ctx, JobSpec{
		Name:     "night-sync",
		Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 1000},
		Payload:  json.RawMessage(`{"job":"night"}`),
	})
	require.NoError(t, err)

	bgClk.now = 2500
	fired := bg.EvaluateNow(ctx, SourceBackground)
	require.Len(t, fired, 1)

	// Foreground comes alive later with a bridge and drains on resume.
	fgClk := &fakeClock{now: 3000}
	bridge := &captureBridge{}
	fg := newTestScheduler(t, kv, bridge, fgClk)
	fg.store.Load()
	fg.OnForegroundResume(ctx)

	require.NotEmpty(t, bridge.fired, "queued background event must be delivered")
	assert.Equal(t, "night-sync", bridge.fired[0].Name)
	assert.Equal(t, SourceBackground, bridge.fired[0].Source)
	assert.JSONEq(t, `{"job":"night"}`, string(bridge.fired[0].Payload))

	// The queue does not re-deliver.
	before := len(bridge.fired)
	fg.OnForegroundResume(ctx)
	for _, ev := range bridge.fired[before:] {
		assert.NotEqual(t, int64(2500), ev.FiredAt, "drained event re-delivered")
	}
}

func TestScheduler_OverdueOnResume(t *testing.T) {
	kv := storage.NewMemory()
	ctx := context.Background()
	clk := &fakeClock{now: 1000}
	bridge := &captureBridge{}
	s := newTestScheduler(t, kv, bridge, clk)

	_, err := s.Register(ctx, JobSpec{Name: "stale", Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 1000}})
	require.NoError(t, err)

	// App comes back long after the due time.
	clk.now = 10_500
	s.OnForegroundResume(ctx)

	require.Len(t, bridge.overdue, 1)
	require.Len(t, bridge.overdue[0], 1)
	assert.Equal(t, "stale", bridge.overdue[0][0].Name)
	assert.Equal(t, int64(8_500), bridge.overdue[0][0].OverdueMs, "overdue relative to the original due time")
	require.Len(t, bridge.fired, 1)
	assert.Equal(t, SourceForeground, bridge.fired[0].Source)
}

func TestScheduler_StorageWriteFailureDegradesSilently(t *testing.T) {
	kv := storage.NewMemory()
	kv.FailWrites = true
	clk := &fakeClock{now: 1000}
	s := newTestScheduler(t, kv, nil, clk)
	ctx := context.Background()

	id, err := s.Register(ctx, JobSpec{Name: "volatile", Schedule: Schedule{Kind: ScheduleEvery, IntervalMs: 1000}})
	require.NoError(t, err, "registration succeeds even when persistence fails")

	// In-memory state stays authoritative for this process.
	clk.now = 2500
	fired := s.EvaluateNow(ctx, SourceWatchdog)
	require.Len(t, fired, 1)
	assert.Equal(t, id, fired[0].ID)
}

func TestScheduler_RequiresStorage(t *testing.T) {
	_, err := NewScheduler(Options{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
