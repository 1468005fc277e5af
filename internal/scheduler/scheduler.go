// Package scheduler runs named recurring jobs on cron schedules.
//
// Each job carries a running flag checked at tick time: a tick that arrives
// while the previous run of the same job is still executing is skipped and
// counted, never run concurrently. Manual triggers go through the same guard.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/pkg/logger"
	"xixu.io/notifier/internal/pkg/worker"
)

var (
	// ErrJobNotFound is returned for an unregistered job name.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobRunning is returned by Trigger when the job is already running.
	ErrJobRunning = errors.New("job already running")
	// ErrNoPool is returned by Trigger when no worker pools were configured.
	ErrNoPool = errors.New("no worker pool for manual runs")
	// ErrStarted is returned by Register after Start.
	ErrStarted = errors.New("scheduler already started")
)

// Handler is one run of a job.
type Handler func(ctx context.Context) error

// Job is a named handler on a cron schedule.
type Job struct {
	Name string
	// Spec is a standard five-field cron expression or a descriptor such as
	// "@daily" or "@every 1h".
	Spec    string
	Handler Handler
}

// JobStatus is a point-in-time view of a registered job.
type JobStatus struct {
	Name           string    `json:"name"`
	Spec           string    `json:"spec"`
	Running        bool      `json:"running"`
	Runs           int64     `json:"runs"`
	Skipped        int64     `json:"skipped"`
	Failures       int64     `json:"failures"`
	LastStartedAt  time.Time `json:"last_started_at,omitzero"`
	LastFinishedAt time.Time `json:"last_finished_at,omitzero"`
	LastError      string    `json:"last_error,omitempty"`
	Next           time.Time `json:"next,omitzero"`
}

// Options configures a Scheduler.
type Options struct {
	// Location for evaluating schedules. Defaults to time.Local.
	Location *time.Location
	// Pools runs manual triggers. Nil makes Trigger run the job inline.
	Pools *worker.Pools
}

type entry struct {
	job     Job
	id      cron.EntryID
	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64

	mu         sync.Mutex
	lastStart  time.Time
	lastFinish time.Time
	lastErr    error
}

// Scheduler owns the job registry and the cron engine.
type Scheduler struct {
	cron  *cron.Cron
	pools *worker.Pools
	log   *zap.Logger

	mu      sync.RWMutex
	jobs    map[string]*entry
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	// manual tracks triggered runs so Stop can wait for them.
	manual sync.WaitGroup
}

// New creates a scheduler. Register jobs before calling Start.
func New(opts Options) *Scheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	log := logger.Named("scheduler")
	cl := cronLogger{log: log.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		pools:  opts.Pools,
		log:    log,
		jobs:   make(map[string]*entry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a job. Names must be unique and the spec must parse.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return errors.New("job name is required")
	}
	if job.Handler == nil {
		return fmt.Errorf("job %s: handler is required", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Spec, func() { s.tick(e) })
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", job.Name, job.Spec, err)
	}
	e.id = id
	s.jobs[job.Name] = e
	return nil
}

// Start begins firing scheduled ticks. It does not block.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop halts scheduling and waits for running jobs until ctx is done.
// When ctx expires first, running jobs see their context cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()

	allDone := make(chan struct{})
	go func() { //nolint:naked-goroutine // joins the two wait sources; exits when both drain
		<-cronDone.Done()
		s.manual.Wait()
		close(allDone)
	}()

	defer s.cancel()
	select {
	case <-allDone:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out, cancelling running jobs")
		return ctx.Err()
	}
}

// RunNow runs the job on the calling goroutine. It returns false without
// running when the job is already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	e, err := s.lookup(name)
	if err != nil {
		return false, err
	}
	if !e.running.CompareAndSwap(false, true) {
		s.skip(e, "manual")
		return false, nil
	}
	return true, s.run(ctx, e)
}

// Trigger starts a run of the job in the background. It returns
// ErrJobRunning when a run is already in progress and ErrNoPool when the
// scheduler was built without worker pools, since the run would otherwise
// block the caller for the whole scan.
func (s *Scheduler) Trigger(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	if s.pools == nil {
		return fmt.Errorf("%w: %s", ErrNoPool, name)
	}
	if !e.running.CompareAndSwap(false, true) {
		s.skip(e, "manual")
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	// The pool must always run the task so the flag and wait group are
	// released; the run itself still observes s.ctx.
	s.manual.Add(1)
	err = s.pools.General.Submit(context.WithoutCancel(s.ctx), func(context.Context) {
		defer s.manual.Done()
		_ = s.run(s.ctx, e)
	})
	if err != nil {
		s.manual.Done()
		e.running.Store(false)
		return fmt.Errorf("submit job %s: %w", name, err)
	}
	return nil
}

// Status returns every registered job, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		st := JobStatus{
			Name:     e.job.Name,
			Spec:     e.job.Spec,
			Running:  e.running.Load(),
			Runs:     e.runs.Load(),
			Skipped:  e.skipped.Load(),
			Failures: e.failed.Load(),
			Next:     s.cron.Entry(e.id).Next,
		}
		e.mu.Lock()
		st.LastStartedAt = e.lastStart
		st.LastFinishedAt = e.lastFinish
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return e, nil
}

// tick is the cron callback.
func (s *Scheduler) tick(e *entry) {
	if !e.running.CompareAndSwap(false, true) {
		s.skip(e, "schedule")
		return
	}
	_ = s.run(s.ctx, e)
}

// run executes the handler. The caller must have set e.running.
func (s *Scheduler) run(ctx context.Context, e *entry) error {
	defer e.running.Store(false)

	start := time.Now()
	e.mu.Lock()
	e.lastStart = start
	e.mu.Unlock()
	e.runs.Add(1)

	s.log.Info("job started", zap.String("job", e.job.Name))
	err := e.job.Handler(ctx)
	elapsed := time.Since(start)

	e.mu.Lock()
	e.lastFinish = time.Now()
	e.lastErr = err
	e.mu.Unlock()

	if err != nil {
		e.failed.Add(1)
		s.log.Error("job failed",
			zap.String("job", e.job.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}
	s.log.Info("job finished",
		zap.String("job", e.job.Name),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func (s *Scheduler) skip(e *entry, source string) {
	n := e.skipped.Add(1)
	s.log.Warn("job still running, tick skipped",
		zap.String("job", e.job.Name),
		zap.String("source", source),
		zap.Int64("skipped_total", n),
	)
}

// cronLogger routes cron's own logging through zap. Cron's info output is
// per-tick noise, so it goes to debug.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append([]any{"error", err}, keysAndValues...)...)
}

var _ cron.Logger = cronLogger{}
