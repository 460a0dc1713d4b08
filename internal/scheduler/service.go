// Package scheduler manages persisted scheduled jobs: prompts submitted to
// the engine on an interval, a cron expression, or at a one-shot time. The
// service also hosts the periodic memory-compaction trigger so summarization
// never runs inline with a user-facing turn.
//
// Jobs persist as one JSON document:
//
//	{ "version": 1, "jobs": [ { "id":"…", "name":"…", "enabled":true,
//	    "schedule":{"kind":"every","everyMs":…},
//	    "payload":{"prompt":"…","deliver":false},
//	    "state":{"nextRunAtMs":…,"lastRunAtMs":…,"lastStatus":"ok"},
//	    "createdAtMs":…, "updatedAtMs":…, "deleteAfterRun":false } ] }
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"
)

// --------------------------------------------------------------------------
// Data types
// --------------------------------------------------------------------------

// Schedule says when a job fires.
type Schedule struct {
	Kind    string  `json:"kind"`              // "every" | "cron" | "at"
	AtMs    *int64  `json:"atMs,omitempty"`    // one-time
	EveryMs *int64  `json:"everyMs,omitempty"` // interval
	Expr    *string `json:"expr,omitempty"`    // cron expression
	TZ      *string `json:"tz,omitempty"`      // IANA timezone
}

// Payload is what a job submits to the engine when it fires.
type Payload struct {
	Prompt  string  `json:"prompt"`
	Deliver bool    `json:"deliver"`
	Channel *string `json:"channel,omitempty"`
	To      *string `json:"to,omitempty"`
}

// JobState tracks run bookkeeping.
type JobState struct {
	NextRunAtMs *int64  `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  *string `json:"lastStatus,omitempty"`
	LastError   *string `json:"lastError,omitempty"`
}

// Job is one persisted scheduled task.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	UpdatedAtMs    int64    `json:"updatedAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

type jobStore struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// JobSpec describes a job to add.
type JobSpec struct {
	Name           string
	Prompt         string
	Kind           string // "every" | "cron" | "at"
	EveryMs        int64
	Expr           string
	TZ             string
	AtMs           int64
	Deliver        bool
	Channel        string
	To             string
	DeleteAfterRun bool
}

// --------------------------------------------------------------------------
// Service
// --------------------------------------------------------------------------

// OnJobFunc is called when a job fires. It returns the engine's reply text.
type OnJobFunc func(ctx context.Context, job Job) (string, error)

// CompactFunc runs one memory-compaction cycle and returns how many
// conversations were compacted.
type CompactFunc func(ctx context.Context) int

// Service manages scheduled jobs and the compaction trigger.
type Service struct {
	storePath    string
	onJob        OnJobFunc
	compact      CompactFunc
	compactEvery time.Duration

	mu    sync.Mutex
	store jobStore

	jobsDisabled bool

	// Active timers / cron entries keyed by job ID.
	timers  map[string]*time.Timer
	cron    *robfigcron.Cron
	cronIDs map[string]robfigcron.EntryID
}

// NewService creates a Service persisting its job list at storePath.
func NewService(storePath string) *Service {
	return &Service{
		storePath: storePath,
		timers:    make(map[string]*time.Timer),
		cron:      robfigcron.New(robfigcron.WithSeconds()),
		cronIDs:   make(map[string]robfigcron.EntryID),
	}
}

// SetOnJob registers the callback executed when a job fires.
// Must be set before Start().
func (s *Service) SetOnJob(fn OnJobFunc) { s.onJob = fn }

// SetCompaction arms the periodic compaction trigger: fn runs once every
// interval while the service is started. Must be set before Start().
func (s *Service) SetCompaction(fn CompactFunc, every time.Duration) {
	s.compact = fn
	s.compactEvery = every
}

// DisableJobs keeps persisted jobs from arming at Start; the compaction
// trigger still runs. Used when the scheduler is configured off.
func (s *Service) DisableJobs() { s.jobsDisabled = true }

// Start loads jobs from disk, (re)computes next-run times, and arms all
// timers plus the compaction ticker. Blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		slog.Warn("scheduler: load failed, starting empty", "error", err)
	}
	if !s.jobsDisabled {
		s.recomputeNextRunsLocked()
		s.saveLocked()
		s.armAllLocked(ctx)
	}
	jobs := len(s.store.Jobs)
	s.mu.Unlock()

	s.cron.Start()
	slog.Info("scheduler: started", "jobs", jobs, "jobsDisabled", s.jobsDisabled, "compaction", s.compactEvery)

	// A nil channel blocks forever, which disables the compaction arm when
	// no trigger is configured.
	var compactC <-chan time.Time
	if s.compact != nil && s.compactEvery > 0 {
		ticker := time.NewTicker(s.compactEvery)
		defer ticker.Stop()
		compactC = ticker.C
	}

	for {
		select {
		case <-compactC:
			if n := s.compact(ctx); n > 0 {
				slog.Info("scheduler: compaction cycle done", "conversations", n)
			}
		case <-ctx.Done():
			<-s.cron.Stop().Done()
			s.mu.Lock()
			for _, t := range s.timers {
				t.Stop()
			}
			s.mu.Unlock()
			return ctx.Err()
		}
	}
}

// AddJob validates spec, persists the new job, and returns it. Timers are
// armed on Start; a job added to a running service fires from its next
// recomputation (CLI adds happen against a stopped service).
func (s *Service) AddJob(spec JobSpec) (Job, error) {
	sched := Schedule{Kind: spec.Kind}
	switch spec.Kind {
	case "every":
		if spec.EveryMs <= 0 {
			return Job{}, fmt.Errorf("interval must be positive")
		}
		sched.EveryMs = &spec.EveryMs
	case "cron":
		if spec.Expr == "" {
			return Job{}, fmt.Errorf("cron expression required")
		}
		sched.Expr = &spec.Expr
		if spec.TZ != "" {
			sched.TZ = &spec.TZ
		}
	case "at":
		if spec.AtMs <= 0 {
			return Job{}, fmt.Errorf("run time required")
		}
		sched.AtMs = &spec.AtMs
	default:
		return Job{}, fmt.Errorf("unknown schedule kind %q", spec.Kind)
	}

	payload := Payload{Prompt: spec.Prompt, Deliver: spec.Deliver}
	if spec.Channel != "" {
		payload.Channel = &spec.Channel
	}
	if spec.To != "" {
		payload.To = &spec.To
	}

	now := nowMs()
	job := Job{
		ID:             uuid.NewString()[:8],
		Name:           spec.Name,
		Enabled:        true,
		Schedule:       sched,
		Payload:        payload,
		State:          JobState{NextRunAtMs: computeNextRun(sched, now)},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: spec.DeleteAfterRun,
	}

	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		slog.Warn("scheduler: load before add failed", "error", err)
	}
	s.store.Jobs = append(s.store.Jobs, job)
	s.saveLocked()
	s.mu.Unlock()

	slog.Info("scheduler: added job", "name", spec.Name, "id", job.ID, "kind", spec.Kind)
	return job, nil
}

// Remove deletes a job by ID and reports whether it existed.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	before := len(s.store.Jobs)
	filtered := s.store.Jobs[:0]
	for _, j := range s.store.Jobs {
		if j.ID != id {
			filtered = append(filtered, j)
		}
	}
	s.store.Jobs = filtered
	if len(filtered) < before {
		s.cancelTimerLocked(id)
		s.saveLocked()
		return true
	}
	return false
}

// Jobs returns jobs sorted by next run time ascending; includeDisabled
// controls whether disabled jobs appear.
func (s *Service) Jobs(includeDisabled bool) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	var jobs []Job
	for _, j := range s.store.Jobs {
		if includeDisabled || j.Enabled {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool {
		a := int64(^uint64(0) >> 1)
		b := int64(^uint64(0) >> 1)
		if jobs[i].State.NextRunAtMs != nil {
			a = *jobs[i].State.NextRunAtMs
		}
		if jobs[k].State.NextRunAtMs != nil {
			b = *jobs[k].State.NextRunAtMs
		}
		return a < b
	})
	return jobs
}

// CountEnabled returns the number of enabled jobs; the status provider feeds
// it into the composed prompt.
func (s *Service) CountEnabled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	n := 0
	for _, j := range s.store.Jobs {
		if j.Enabled {
			n++
		}
	}
	return n
}

// Enable turns a job on or off and returns the updated job.
func (s *Service) Enable(id string, enabled bool) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID != id {
			continue
		}
		s.store.Jobs[i].Enabled = enabled
		s.store.Jobs[i].UpdatedAtMs = nowMs()
		if enabled {
			s.store.Jobs[i].State.NextRunAtMs = computeNextRun(s.store.Jobs[i].Schedule, nowMs())
		} else {
			s.store.Jobs[i].State.NextRunAtMs = nil
			s.cancelTimerLocked(id)
		}
		s.saveLocked()
		return s.store.Jobs[i], true
	}
	return Job{}, false
}

// Run executes a job immediately; force runs it even when disabled.
func (s *Service) Run(ctx context.Context, id string, force bool) bool {
	s.mu.Lock()
	_ = s.loadLocked()
	var job *Job
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID == id {
			if !force && !s.store.Jobs[i].Enabled {
				s.mu.Unlock()
				return false
			}
			job = &s.store.Jobs[i]
			break
		}
	}
	if job == nil {
		s.mu.Unlock()
		return false
	}
	jobCopy := *job
	s.mu.Unlock()

	s.executeJob(ctx, jobCopy)
	return true
}

// --------------------------------------------------------------------------
// Internal scheduling logic
// --------------------------------------------------------------------------

func (s *Service) recomputeNextRunsLocked() {
	now := nowMs()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].Enabled {
			s.store.Jobs[i].State.NextRunAtMs = computeNextRun(s.store.Jobs[i].Schedule, now)
		}
	}
}

func (s *Service) armAllLocked(ctx context.Context) {
	for _, j := range s.store.Jobs {
		if j.Enabled {
			s.armJobLocked(ctx, j)
		}
	}
}

func (s *Service) armJobLocked(ctx context.Context, job Job) {
	s.cancelTimerLocked(job.ID)

	switch job.Schedule.Kind {
	case "every":
		if job.Schedule.EveryMs == nil || *job.Schedule.EveryMs <= 0 {
			return
		}
		d := time.Duration(*job.Schedule.EveryMs) * time.Millisecond
		t := time.AfterFunc(d, func() {
			s.executeJob(ctx, job)
			// Re-arm for the next tick, refreshing from the store in case
			// the job changed meanwhile.
			s.mu.Lock()
			for _, j := range s.store.Jobs {
				if j.ID == job.ID && j.Enabled {
					s.armJobLocked(ctx, j)
					break
				}
			}
			s.mu.Unlock()
		})
		s.timers[job.ID] = t

	case "at":
		if job.Schedule.AtMs == nil {
			return
		}
		delay := time.Until(time.UnixMilli(*job.Schedule.AtMs))
		if delay < 0 {
			return
		}
		t := time.AfterFunc(delay, func() {
			s.executeJob(ctx, job)
		})
		s.timers[job.ID] = t

	case "cron":
		if job.Schedule.Expr == nil {
			return
		}
		loc := time.Local
		if job.Schedule.TZ != nil && *job.Schedule.TZ != "" {
			if l, err := time.LoadLocation(*job.Schedule.TZ); err == nil {
				loc = l
			}
		}
		parser := robfigcron.NewParser(
			robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
		)
		sched, err := parser.Parse(*job.Schedule.Expr)
		if err != nil {
			slog.Warn("scheduler: invalid cron expression", "job", job.ID, "expr", *job.Schedule.Expr, "error", err)
			return
		}
		jobCopy := job
		entryID := s.cron.Schedule(
			withLocation(sched, loc),
			robfigcron.FuncJob(func() { s.executeJob(ctx, jobCopy) }),
		)
		s.cronIDs[job.ID] = entryID
	}
}

func (s *Service) cancelTimerLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	if eid, ok := s.cronIDs[id]; ok {
		s.cron.Remove(eid)
		delete(s.cronIDs, id)
	}
}

func (s *Service) executeJob(ctx context.Context, job Job) {
	startMs := nowMs()
	slog.Info("scheduler: executing job", "name", job.Name, "id", job.ID)

	lastStatus := "ok"
	var lastErr *string

	if s.onJob != nil {
		if _, err := s.onJob(ctx, job); err != nil {
			lastStatus = "error"
			e := err.Error()
			lastErr = &e
			slog.Error("scheduler: job failed", "name", job.Name, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID != job.ID {
			continue
		}
		now := nowMs()
		s.store.Jobs[i].State.LastRunAtMs = &startMs
		s.store.Jobs[i].State.LastStatus = &lastStatus
		s.store.Jobs[i].State.LastError = lastErr
		s.store.Jobs[i].UpdatedAtMs = now

		if job.Schedule.Kind == "at" {
			if job.DeleteAfterRun {
				filtered := s.store.Jobs[:0]
				for _, j := range s.store.Jobs {
					if j.ID != job.ID {
						filtered = append(filtered, j)
					}
				}
				s.store.Jobs = filtered
			} else {
				s.store.Jobs[i].Enabled = false
				s.store.Jobs[i].State.NextRunAtMs = nil
			}
		} else {
			s.store.Jobs[i].State.NextRunAtMs = computeNextRun(job.Schedule, now)
		}
		break
	}
	s.saveLocked()
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

func (s *Service) loadLocked() error {
	if len(s.store.Jobs) > 0 {
		return nil // already loaded
	}
	data, err := os.ReadFile(s.storePath)
	if os.IsNotExist(err) {
		s.store = jobStore{Version: 1}
		return nil
	}
	if err != nil {
		return err
	}
	var st jobStore
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	s.store = st
	return nil
}

func (s *Service) saveLocked() {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		slog.Warn("scheduler: mkdir failed", "error", err)
		return
	}
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		slog.Warn("scheduler: marshal failed", "error", err)
		return
	}
	if err := os.WriteFile(s.storePath, data, 0o644); err != nil {
		slog.Warn("scheduler: write failed", "error", err)
	}
}

// --------------------------------------------------------------------------
// Utility
// --------------------------------------------------------------------------

func nowMs() int64 { return time.Now().UnixMilli() }

// computeNextRun resolves when a schedule next fires after nowMs; nil means
// never (past one-shot, zero interval, or unparseable expression).
func computeNextRun(sched Schedule, nowMs int64) *int64 {
	switch sched.Kind {
	case "at":
		if sched.AtMs != nil && *sched.AtMs > nowMs {
			v := *sched.AtMs
			return &v
		}
	case "every":
		if sched.EveryMs != nil && *sched.EveryMs > 0 {
			v := nowMs + *sched.EveryMs
			return &v
		}
	case "cron":
		if sched.Expr != nil {
			loc := time.Local
			if sched.TZ != nil && *sched.TZ != "" {
				if l, err := time.LoadLocation(*sched.TZ); err == nil {
					loc = l
				}
			}
			parser := robfigcron.NewParser(
				robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
			)
			parsed, err := parser.Parse(*sched.Expr)
			if err == nil {
				next := parsed.Next(time.UnixMilli(nowMs).In(loc))
				v := next.UnixMilli()
				return &v
			}
		}
	}
	return nil
}

// locSchedule wraps a Schedule to always evaluate in a specific location.
type locSchedule struct {
	inner robfigcron.Schedule
	loc   *time.Location
}

func (l locSchedule) Next(t time.Time) time.Time {
	return l.inner.Next(t.In(l.loc))
}

func withLocation(s robfigcron.Schedule, loc *time.Location) robfigcron.Schedule {
	return locSchedule{inner: s, loc: loc}
}
