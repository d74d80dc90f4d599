package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler wraps a cron.Cron holding a single entry.
type Scheduler struct {
	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	spec  string
	job   Job

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	skipped atomic.Int64
}

// New validates spec and returns a stopped Scheduler for job.
func New(spec string, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("scheduler: nil job")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}

	s := &Scheduler{
		cron: cron.New(cron.WithLogger(slogLogger{})),
		spec: spec,
		job:  job,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	id, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("scheduler: add %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing the job in a background goroutine. Jobs receive a
// context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	slog.Info("scheduler: started", "schedule", s.Spec(), "next", s.Next())
}

// Stop halts the schedule, cancels a running job and waits for it to return.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	<-done.Done()
	slog.Info("scheduler: stopped")
}

// Update replaces the schedule expression. On error the old schedule stays.
func (s *Scheduler) Update(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec == s.spec {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}
	id, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return fmt.Errorf("scheduler: add %q: %w", spec, err)
	}
	s.cron.Remove(s.entry)
	slog.Info("scheduler: schedule updated", "from", s.spec, "to", spec)
	s.entry = id
	s.spec = spec
	return nil
}

// Spec returns the current schedule expression.
func (s *Scheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Next returns the next activation time, or the zero time when the scheduler
// has not been started.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	id := s.entry
	s.mu.Unlock()
	return s.cron.Entry(id).Next
}

// RunNow runs the job immediately in the calling goroutine, subject to the
// same no-overlap rule as scheduled ticks.
func (s *Scheduler) RunNow() { s.run() }

// Skipped returns how many ticks were dropped because a run was in progress.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

func (s *Scheduler) run() {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		slog.Warn("scheduler: previous run still in progress, skipping tick", "schedule", s.Spec())
		return
	}
	defer s.running.Store(false)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	s.job(ctx)
	slog.Debug("scheduler: run finished", "duration", time.Since(start))
}

// slogLogger routes cron's internal logging through slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("scheduler: cron "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("scheduler: cron "+msg, append(keysAndValues, "err", err)...)
}
