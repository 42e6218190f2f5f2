package sched

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tickloop/tickloop/internal/pkg/logs"
	"github.com/tickloop/tickloop/internal/pkg/metrics"
	"github.com/tickloop/tickloop/internal/storage"
)

// tickIntervals maps mode to the watchdog timer cadence. Mode affects
// delivery latency only; due times are carried in the persisted record and do
// not depend on how often the timer fires.
var tickIntervals = map[Mode]time.Duration{
	ModeEco:        5 * time.Minute,
	ModeBalanced:   time.Minute,
	ModeAggressive: 15 * time.Second,
}

// Profile captures platform-level scheduling limits.
type Profile struct {
	Name          string
	MinIntervalMs int64
}

var (
	ProfileGeneric = Profile{Name: "generic"}
	// ProfileMobile mirrors mobile background-task managers, which refuse
	// periodic work more frequent than once a minute.
	ProfileMobile = Profile{Name: "mobile", MinIntervalMs: 60_000}
)

// Bridge receives the scheduler's outward events. It is injected at
// construction and scoped to the scheduler's lifetime; a nil bridge means no
// live application is reachable and fired events queue in the persisted blob
// until drained.
type Bridge interface {
	JobFired(ev FiredEvent)
	JobSkipped(ev SkipEvent)
	OverdueOnResume(jobs []OverdueJob)
	StatusChanged(st Status)
}

// Options configures a Scheduler.
type Options struct {
	Storage storage.KV
	Bridge  Bridge  // optional
	Probe   Probe   // optional, defaults to fail-open
	Profile Profile // zero value means ProfileGeneric
	Clock   func() int64
	// InitialMode seeds the watchdog cadence on a cold start; once a
	// snapshot exists its persisted mode wins.
	InitialMode Mode
}

// JobSpec is the configuration surface accepted by Register.
type JobSpec struct {
	Name             string
	Schedule         Schedule
	ActiveHours      *ActiveHours
	RequiresNetwork  bool
	RequiresCharging bool
	Priority         Priority
	Payload          json.RawMessage
}

// JobUpdate holds partial updates for an existing job. Nil fields are left
// untouched. ActiveHours is doubly indirected so callers can distinguish
// "leave alone" (nil) from "clear the window" (pointer to nil).
type JobUpdate struct {
	Name             *string
	Schedule         *Schedule
	ActiveHours      **ActiveHours
	RequiresNetwork  *bool
	RequiresCharging *bool
	Priority         *Priority
	Payload          *json.RawMessage
}

// Scheduler is the public operation surface: it owns the store and engine,
// runs the recurring watchdog timer, and translates engine output into
// outward-facing events.
type Scheduler struct {
	store    *Store
	engine   *Engine
	bridge   Bridge
	profile  Profile
	clock    func() int64
	coldMode Mode

	tickMu sync.Mutex
	ticker *time.Ticker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler wires a scheduler over the given blob storage.
func NewScheduler(opts Options) (*Scheduler, error) {
	if opts.Storage == nil {
		return nil, fmt.Errorf("scheduler requires storage")
	}
	profile := opts.Profile
	if profile.Name == "" {
		profile = ProfileGeneric
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}

	store := NewStore(opts.Storage)
	return &Scheduler{
		store:    store,
		engine:   NewEngine(store, opts.Probe),
		bridge:   opts.Bridge,
		profile:  profile,
		clock:    clock,
		coldMode: opts.InitialMode,
	}, nil
}

// Start loads persisted state and begins the watchdog loop. A missing or
// corrupt snapshot means cold start, never a startup failure.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.store.Load() && validMode(s.coldMode) {
		s.store.SetMode(s.coldMode)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	logs.CtxInfo(ctx, "[sched] scheduler started (mode=%s profile=%s)", s.store.Mode(), s.profile.Name)
}

// Stop cancels the watchdog loop and persists a final snapshot.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logs.CtxWarn(ctx, "[sched] stop timed out waiting for watchdog")
	}

	if err := s.store.Save(); err != nil {
		logs.CtxWarn(ctx, "[sched] save store on shutdown: %v", err)
	}
	logs.CtxInfo(ctx, "[sched] scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	s.tickMu.Lock()
	s.ticker = time.NewTicker(tickIntervals[s.store.Mode()])
	ticker := s.ticker
	s.tickMu.Unlock()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvaluateNow(ctx, SourceWatchdog)
		}
	}
}

// Register validates the spec, assigns an ID, computes the initial due time
// eagerly and persists the new job.
func (s *Scheduler) Register(ctx context.Context, spec JobSpec) (string, error) {
	now := s.clock()

	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return "", fmt.Errorf("%w: job name is required", ErrInvalid)
	}
	if err := spec.Schedule.validate(s.profile.MinIntervalMs); err != nil {
		return "", err
	}
	if err := spec.ActiveHours.validate(); err != nil {
		return "", err
	}
	priority := spec.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !validPriority(priority) {
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalid, spec.Priority)
	}

	job := Job{
		ID:               uuid.NewString(),
		Name:             name,
		Enabled:          true,
		Schedule:         spec.Schedule.normalize(now),
		ActiveHours:      spec.ActiveHours,
		RequiresNetwork:  spec.RequiresNetwork,
		RequiresCharging: spec.RequiresCharging,
		Priority:         priority,
		Payload:          spec.Payload,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	job.NextDueAt = nextDueOrNil(job.Schedule, now)

	if err := s.store.Add(job); err != nil {
		return "", err
	}
	s.persist(ctx, "register")
	logs.CtxInfo(ctx, "[sched] registered %s (%s) next=%v", job.Name, job.ID, job.NextDueAt)
	return job.ID, nil
}

// Unregister removes a job. Unknown IDs are a silent no-op.
func (s *Scheduler) Unregister(ctx context.Context, jobID string) {
	if s.store.Remove(jobID) {
		s.persist(ctx, "unregister")
		logs.CtxInfo(ctx, "[sched] unregistered %s", jobID)
	}
}

// Update applies a partial update. Every provided field is validated before
// any of them is applied; a schedule change re-derives the anchor from now
// and recomputes the due time.
func (s *Scheduler) Update(ctx context.Context, jobID string, upd JobUpdate) error {
	job, ok := s.store.Get(jobID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	now := s.clock()

	var name string
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
		if name == "" {
			return fmt.Errorf("%w: job name is required", ErrInvalid)
		}
	}
	if upd.Schedule != nil {
		if err := upd.Schedule.validate(s.profile.MinIntervalMs); err != nil {
			return err
		}
	}
	if upd.ActiveHours != nil && *upd.ActiveHours != nil {
		if err := (*upd.ActiveHours).validate(); err != nil {
			return err
		}
	}
	if upd.Priority != nil && !validPriority(*upd.Priority) {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalid, *upd.Priority)
	}

	if upd.Name != nil {
		job.Name = name
	}
	if upd.Schedule != nil {
		job.Schedule = upd.Schedule.normalize(now)
		job.NextDueAt = nextDueOrNil(job.Schedule, now)
	}
	if upd.ActiveHours != nil {
		job.ActiveHours = *upd.ActiveHours
	}
	if upd.RequiresNetwork != nil {
		job.RequiresNetwork = *upd.RequiresNetwork
	}
	if upd.RequiresCharging != nil {
		job.RequiresCharging = *upd.RequiresCharging
	}
	if upd.Priority != nil {
		job.Priority = *upd.Priority
	}
	if upd.Payload != nil {
		job.Payload = *upd.Payload
	}
	job.UpdatedAt = now

	s.store.Update(job)
	s.persist(ctx, "update")
	return nil
}

// List returns all jobs sorted ascending by due time, jobs with no future
// occurrence last.
func (s *Scheduler) List() []Job {
	return s.store.List()
}

// TriggerNow fires a job immediately regardless of pause, window or
// constraint state.
func (s *Scheduler) TriggerNow(ctx context.Context, jobID string) error {
	ev, err := s.engine.TriggerNow(ctx, s.clock(), jobID)
	if err != nil {
		return err
	}
	s.deliver(ctx, EvalResult{Fired: []FiredEvent{ev}})
	return nil
}

// PauseAll sets the scheduler-wide pause flag. Idempotent.
func (s *Scheduler) PauseAll(ctx context.Context) {
	if s.store.SetPaused(true) {
		s.persist(ctx, "pause")
		s.emitStatus()
		logs.CtxInfo(ctx, "[sched] paused")
	}
}

// ResumeAll clears the scheduler-wide pause flag. Idempotent.
func (s *Scheduler) ResumeAll(ctx context.Context) {
	if s.store.SetPaused(false) {
		s.persist(ctx, "resume")
		s.emitStatus()
		logs.CtxInfo(ctx, "[sched] resumed")
	}
}

// SetMode switches the watchdog cadence. Only the fixed set of modes is
// accepted.
func (s *Scheduler) SetMode(ctx context.Context, mode Mode) error {
	if !validMode(mode) {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalid, mode)
	}
	s.store.SetMode(mode)
	s.persist(ctx, "set mode")

	s.tickMu.Lock()
	if s.ticker != nil {
		s.ticker.Reset(tickIntervals[mode])
	}
	s.tickMu.Unlock()

	s.emitStatus()
	logs.CtxInfo(ctx, "[sched] mode set to %s", mode)
	return nil
}

// Status reports the scheduler-wide state and a diagnostics block.
func (s *Scheduler) Status() Status {
	mode := s.store.Mode()
	st := Status{
		Paused:   s.store.Paused(),
		Mode:     mode,
		Platform: s.profile.Name,
		Diagnostics: map[string]any{
			"tickInterval":  tickIntervals[mode].String(),
			"pendingEvents": s.store.PendingCount(),
			"storeKey":      StoreKey,
		},
	}
	for _, job := range s.store.Jobs() {
		if !job.Enabled {
			continue
		}
		st.EnabledJobs++
		// An enabled job may have no future occurrence; it still counts.
		if job.NextDueAt == nil {
			continue
		}
		if st.NextDueAt == nil || *job.NextDueAt < *st.NextDueAt {
			st.NextDueAt = ptrMs(*job.NextDueAt)
		}
	}
	return st
}

// EvaluateNow runs one evaluation pass. This is the single entry point shared
// by the watchdog timer, platform background wakes and forced re-evaluations;
// the source tag is carried into fired events.
func (s *Scheduler) EvaluateNow(ctx context.Context, source WakeSource) []FiredEvent {
	res := s.engine.Evaluate(ctx, s.clock(), source)
	s.deliver(ctx, res)
	return res.Fired
}

// OnForegroundResume re-synchronizes with whatever a background context
// persisted, drains undelivered events, and re-evaluates. If the evaluation
// itself fires jobs, one aggregate overdue notification summarizes them.
func (s *Scheduler) OnForegroundResume(ctx context.Context) {
	s.store.Reload()
	s.drainPending(ctx)

	res := s.engine.Evaluate(ctx, s.clock(), SourceForeground)
	s.deliver(ctx, res)
	if s.bridge != nil && len(res.Overdue) > 0 {
		s.bridge.OverdueOnResume(res.Overdue)
	}
}

// deliver routes engine output to the bridge, or stages fired events in the
// persisted queue when no live application is reachable.
func (s *Scheduler) deliver(ctx context.Context, res EvalResult) {
	if s.bridge == nil {
		if len(res.Fired) > 0 {
			s.store.StagePending(res.Fired)
			s.persist(ctx, "stage pending events")
		}
		return
	}

	s.drainPending(ctx)
	for _, ev := range res.Fired {
		s.bridge.JobFired(ev)
	}
	for _, ev := range res.Skipped {
		s.bridge.JobSkipped(ev)
	}
}

func (s *Scheduler) drainPending(ctx context.Context) {
	if s.bridge == nil {
		return
	}
	events, err := s.store.DrainPending()
	if err != nil {
		logs.CtxWarn(ctx, "[sched] persist after drain: %v", err)
		metrics.StoreWriteErrors.Inc()
	}
	for _, ev := range events {
		s.bridge.JobFired(ev)
	}
}

func (s *Scheduler) emitStatus() {
	if s.bridge != nil {
		s.bridge.StatusChanged(s.Status())
	}
}

func (s *Scheduler) persist(ctx context.Context, op string) {
	if err := s.store.Save(); err != nil {
		logs.CtxWarn(ctx, "[sched] persist after %s: %v", op, err)
		metrics.StoreWriteErrors.Inc()
	}
}
