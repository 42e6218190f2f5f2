package sched

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/tickloop/tickloop/internal/pkg/logs"
	"github.com/tickloop/tickloop/internal/storage"
)

// SchemaVersion is the persisted snapshot format version. A blob carrying any
// other version is rejected wholesale and defaults are used instead; a
// half-understood format must never be partially merged.
const SchemaVersion = 1

// StoreKey is the single key the scheduler owns in the blob store.
const StoreKey = "scheduler.json"

// snapshot is the wire form of the persisted scheduler state. Jobs stay raw
// so one malformed record drops alone instead of failing the whole load.
type snapshot struct {
	SchemaVersion      int               `json:"schemaVersion"`
	Paused             bool              `json:"paused"`
	Mode               Mode              `json:"mode"`
	Jobs               []json.RawMessage `json:"jobs"`
	PendingFiredEvents []FiredEvent      `json:"pendingFiredEvents,omitempty"`
}

// Store owns the canonical in-memory job map plus the scheduler-wide flags,
// and serializes them to one blob in the underlying KV. Two execution
// contexts may share that blob without a lock, so every write is a full
// read-modify-write: anything the other context appended and this process
// never held in memory is carried forward, not clobbered.
type Store struct {
	kv  storage.KV
	key string

	mu      sync.RWMutex
	jobs    map[string]Job
	paused  bool
	mode    Mode
	pending []FiredEvent // undelivered fired events staged by this process
}

// NewStore creates a store over the given KV. State starts empty; call Load
// to adopt the persisted snapshot.
func NewStore(kv storage.KV) *Store {
	return &Store{
		kv:   kv,
		key:  StoreKey,
		jobs: make(map[string]Job),
		mode: ModeBalanced,
	}
}

// Load replaces in-memory state with the persisted snapshot and reports
// whether one was adopted. A missing, unreadable or unparseable blob means
// cold start: defaults, no error.
func (s *Store) Load() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = make(map[string]Job)
	s.paused = false
	s.mode = ModeBalanced
	s.pending = nil

	snap, ok := s.readSnapshot()
	if !ok {
		return false
	}

	s.paused = snap.Paused
	if validMode(snap.Mode) {
		s.mode = snap.Mode
	}
	s.pending = snap.PendingFiredEvents
	for _, raw := range snap.Jobs {
		job, err := decodeJob(raw)
		if err != nil {
			logs.Warn("[sched] dropping persisted job: %v", err)
			continue
		}
		s.jobs[job.ID] = job
	}
	return true
}

// readSnapshot fetches and decodes the persisted blob. ok is false on any
// failure, including an unknown schemaVersion.
func (s *Store) readSnapshot() (snapshot, bool) {
	var snap snapshot

	data, err := s.kv.Get(s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logs.Warn("[sched] read persisted state: %v (cold start)", err)
		}
		return snap, false
	}
	if len(data) == 0 {
		return snap, false
	}
	if err := sonic.Unmarshal(data, &snap); err != nil {
		logs.Warn("[sched] unparseable persisted state: %v (cold start)", err)
		return snap, false
	}
	if snap.SchemaVersion != SchemaVersion {
		logs.Warn("[sched] unknown schemaVersion %d, ignoring persisted state", snap.SchemaVersion)
		return snapshot{}, false
	}
	return snap, true
}

func decodeJob(raw json.RawMessage) (Job, error) {
	var job Job
	if err := sonic.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.ID == "" || job.Name == "" {
		return Job{}, fmt.Errorf("job record missing id or name")
	}
	switch job.Schedule.Kind {
	case ScheduleEvery, ScheduleCron, ScheduleAt:
	default:
		return Job{}, fmt.Errorf("job %s: unrecognized schedule kind %q", job.ID, job.Schedule.Kind)
	}
	return job, nil
}

// Save serializes the current state into the blob. The written
// pendingFiredEvents queue is the union of this process's staged events and
// whatever queue the previously persisted blob carries; a concurrent
// background evaluation may have appended to it through the same blob without
// this process's knowledge, and those events must survive this write.
func (s *Store) Save() error {
	return s.save(true)
}

func (s *Store) save(mergePending bool) error {
	s.mu.RLock()
	snap := snapshot{
		SchemaVersion:      SchemaVersion,
		Paused:             s.paused,
		Mode:               s.mode,
		PendingFiredEvents: append([]FiredEvent(nil), s.pending...),
	}
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt != jobs[k].CreatedAt {
			return jobs[i].CreatedAt < jobs[k].CreatedAt
		}
		return jobs[i].ID < jobs[k].ID
	})
	snap.Jobs = make([]json.RawMessage, 0, len(jobs))
	for _, j := range jobs {
		raw, err := sonic.Marshal(j)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", j.ID, err)
		}
		snap.Jobs = append(snap.Jobs, raw)
	}

	if mergePending {
		if prev, ok := s.readSnapshot(); ok && len(prev.PendingFiredEvents) > 0 {
			seen := make(map[string]struct{}, len(prev.PendingFiredEvents))
			for _, ev := range prev.PendingFiredEvents {
				seen[pendingKey(ev)] = struct{}{}
			}
			merged := append([]FiredEvent(nil), prev.PendingFiredEvents...)
			for _, ev := range snap.PendingFiredEvents {
				if _, dup := seen[pendingKey(ev)]; !dup {
					merged = append(merged, ev)
				}
			}
			snap.PendingFiredEvents = merged
		}
	}

	data, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.kv.Set(s.key, data); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// Add inserts a new job. Returns an error if the ID already exists.
func (s *Store) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job already exists: %s", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// Update replaces an existing job by ID.
func (s *Store) Update(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// Remove deletes a job by ID. Reports whether it existed.
func (s *Store) Remove(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	delete(s.jobs, jobID)
	return ok
}

// Get returns a job by ID.
func (s *Store) Get(jobID string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	return j, ok
}

// Jobs returns a copy of all jobs in unspecified order.
func (s *Store) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// List returns all jobs sorted ascending by NextDueAt; jobs with no future
// occurrence sort last.
func (s *Store) List() []Job {
	out := s.Jobs()
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i].NextDueAt, out[k].NextDueAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[k].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return out[i].ID < out[k].ID
		}
	})
	return out
}

func (s *Store) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

func (s *Store) SetPaused(paused bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.paused != paused
	s.paused = paused
	return changed
}

func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Store) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// StagePending appends fired events that could not be delivered to a live
// bridge; they ride along in the persisted blob until drained.
func (s *Store) StagePending(events []FiredEvent) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, events...)
}

// PendingCount returns the number of staged undelivered events.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// DrainPending collects every undelivered fired event, both the blob's queue
// (which may include events appended by a background context this process
// never saw) and the locally staged ones, clears the queue everywhere, and
// persists the cleared state. Events are deduplicated by (id, firedAt) since
// a successful stage writes the same events into the blob.
func (s *Store) DrainPending() ([]FiredEvent, error) {
	var events []FiredEvent
	if snap, ok := s.readSnapshot(); ok {
		events = append(events, snap.PendingFiredEvents...)
	}

	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		seen[pendingKey(ev)] = struct{}{}
	}

	s.mu.Lock()
	for _, ev := range s.pending {
		if _, dup := seen[pendingKey(ev)]; !dup {
			events = append(events, ev)
		}
	}
	s.pending = nil
	s.mu.Unlock()

	if len(events) == 0 {
		return nil, nil
	}
	return events, s.save(false)
}

func pendingKey(ev FiredEvent) string {
	return fmt.Sprintf("%s|%d", ev.ID, ev.FiredAt)
}

// ApplyEvaluatedJob adopts freshly-evaluated fields for a job this process
// already knows, so a later read-modify-write does not clobber progress made
// by the other execution context.
func (s *Store) ApplyEvaluatedJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[job.ID]
	if !ok {
		return
	}
	cur.Enabled = job.Enabled
	cur.NextDueAt = job.NextDueAt
	cur.LastFiredAt = job.LastFiredAt
	cur.ConsecutiveSkips = job.ConsecutiveSkips
	if job.UpdatedAt > cur.UpdatedAt {
		cur.UpdatedAt = job.UpdatedAt
	}
	s.jobs[job.ID] = cur
}

// Reload merges the persisted snapshot into memory without losing anything
// this process already knows: evaluated fields of known jobs are adopted,
// blob-only jobs are added, memory-only jobs are kept.
func (s *Store) Reload() {
	snap, ok := s.readSnapshot()
	if !ok {
		return
	}

	s.mu.Lock()
	s.paused = snap.Paused
	if validMode(snap.Mode) {
		s.mode = snap.Mode
	}
	s.mu.Unlock()

	for _, raw := range snap.Jobs {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		if _, known := s.Get(job.ID); known {
			s.ApplyEvaluatedJob(job)
		} else {
			s.Update(job)
		}
	}
}
