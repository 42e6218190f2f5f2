package sched

import (
	"context"
	"fmt"

	"github.com/tickloop/tickloop/internal/pkg/logs"
	"github.com/tickloop/tickloop/internal/pkg/metrics"
)

// Env carries the environmental signals the skip policy consults.
type Env struct {
	NetworkAvailable bool
	Charging         bool
}

// Probe samples the execution environment. The background collaborator
// injects a probe wired to real platform signals; where the platform offers
// none, the fail-open default reports every constraint satisfied and skip
// enforcement is delegated to the OS's own task-constraint system.
type Probe interface {
	Sample() Env
}

// StaticProbe returns a fixed Env on every sample.
type StaticProbe Env

func (p StaticProbe) Sample() Env { return Env(p) }

var failOpen Probe = StaticProbe{NetworkAvailable: true, Charging: true}

// EvalResult is the outcome of one evaluation pass.
type EvalResult struct {
	Fired   []FiredEvent
	Skipped []SkipEvent
	// Overdue mirrors Fired with how far past its due time each job was,
	// for the aggregate notification emitted on foreground resume.
	Overdue []OverdueJob
	Mutated bool
}

// Engine applies the due-time and skip-decision algorithm to the job store.
// It behaves identically whether invoked from the watchdog timer, a platform
// wake-up or a manual trigger; both execution contexts run this exact pass
// against the same persisted state.
type Engine struct {
	store *Store
	probe Probe
}

func NewEngine(store *Store, probe Probe) *Engine {
	if probe == nil {
		probe = failOpen
	}
	return &Engine{store: store, probe: probe}
}

// Evaluate runs one pass over all enabled jobs at nowMs. Due jobs either fire
// or are skipped with a reason; state advances are written back to the store
// and persisted once, only when something actually changed.
func (e *Engine) Evaluate(ctx context.Context, nowMs int64, source WakeSource) EvalResult {
	env := e.probe.Sample()
	paused := e.store.Paused()

	var res EvalResult
	for _, job := range e.store.Jobs() {
		if !job.Enabled {
			continue
		}

		if job.NextDueAt == nil {
			next, ok := ComputeNextDue(job.Schedule, nowMs)
			if !ok {
				continue // no future occurrence, nothing to do
			}
			job.NextDueAt = ptrMs(next)
			job.UpdatedAt = nowMs
			e.store.Update(job)
			res.Mutated = true
			continue // freshly computed due time is strictly in the future
		}

		if *job.NextDueAt > nowMs {
			continue
		}

		if reason, skip := e.skipReason(paused, &job, env, nowMs); skip {
			job.ConsecutiveSkips++
			job.UpdatedAt = nowMs
			if job.Schedule.Kind != ScheduleAt {
				// A skipped one-shot stays pending on its original due time
				// so it fires on the first evaluation that clears policy.
				job.NextDueAt = nextDueOrNil(job.Schedule, nowMs)
			}
			e.store.Update(job)
			res.Mutated = true
			res.Skipped = append(res.Skipped, SkipEvent{ID: job.ID, Name: job.Name, Reason: reason})
			metrics.JobsSkipped.WithLabelValues(string(reason)).Inc()
			logs.CtxDebug(ctx, "[sched] skipped %s (%s): %s", job.Name, job.ID, reason)
			continue
		}

		res.Overdue = append(res.Overdue, OverdueJob{
			ID:        job.ID,
			Name:      job.Name,
			OverdueMs: nowMs - *job.NextDueAt,
		})
		ev := fireJob(&job, nowMs, source)
		e.store.Update(job)
		res.Mutated = true
		res.Fired = append(res.Fired, ev)
		metrics.JobsFired.WithLabelValues(string(source)).Inc()
		logs.CtxInfo(ctx, "[sched] fired %s (%s) source=%s", job.Name, job.ID, source)
	}

	metrics.Evaluations.WithLabelValues(string(source)).Inc()

	if res.Mutated {
		if err := e.store.Save(); err != nil {
			// In-memory state stays authoritative for this process even
			// though persistence failed.
			logs.CtxWarn(ctx, "[sched] persist after evaluation: %v", err)
			metrics.StoreWriteErrors.Inc()
		}
	}
	return res
}

// skipReason applies the fixed-priority skip policy; first match wins.
func (e *Engine) skipReason(paused bool, job *Job, env Env, nowMs int64) (SkipReason, bool) {
	switch {
	case paused:
		return SkipPaused, true
	case !WithinActiveHours(job.ActiveHours, nowMs):
		return SkipOutsideHours, true
	case job.RequiresNetwork && !env.NetworkAvailable:
		return SkipRequiresNetwork, true
	case job.RequiresCharging && !env.Charging:
		return SkipRequiresCharging, true
	}
	return "", false
}

// TriggerNow fires the job immediately, bypassing the skip policy entirely,
// then applies the standard post-fire state advance. The scheduler-wide
// paused flag is not consulted and not modified. Disabled jobs are rejected:
// an exhausted one-shot is terminal and re-enabling is not supported.
func (e *Engine) TriggerNow(ctx context.Context, nowMs int64, jobID string) (FiredEvent, error) {
	job, ok := e.store.Get(jobID)
	if !ok {
		return FiredEvent{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if !job.Enabled {
		return FiredEvent{}, fmt.Errorf("%w: job %s is disabled", ErrInvalid, jobID)
	}

	ev := fireJob(&job, nowMs, SourceManual)
	e.store.Update(job)
	if err := e.store.Save(); err != nil {
		logs.CtxWarn(ctx, "[sched] persist after manual trigger: %v", err)
		metrics.StoreWriteErrors.Inc()
	}
	metrics.JobsFired.WithLabelValues(string(SourceManual)).Inc()
	logs.CtxInfo(ctx, "[sched] manually fired %s (%s)", job.Name, job.ID)
	return ev, nil
}

// fireJob transitions a job into the notified state and advances its
// schedule. One-shots become terminal; recurring jobs jump to the next future
// slot with no backlog replay, a job is never fired twice to catch up.
func fireJob(job *Job, nowMs int64, source WakeSource) FiredEvent {
	job.LastFiredAt = ptrMs(nowMs)
	job.UpdatedAt = nowMs
	job.ConsecutiveSkips = 0

	if job.Schedule.Kind == ScheduleAt {
		job.Enabled = false
		job.NextDueAt = nil
	} else {
		job.NextDueAt = nextDueOrNil(job.Schedule, nowMs)
	}

	return FiredEvent{
		ID:      job.ID,
		Name:    job.Name,
		FiredAt: nowMs,
		Source:  source,
		Payload: job.Payload,
	}
}

func nextDueOrNil(s Schedule, nowMs int64) *int64 {
	if next, ok := ComputeNextDue(s, nowMs); ok {
		return ptrMs(next)
	}
	return nil
}
