// Package worker runs the periodic jobs of cassa-worker on cron schedules.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cassa/internal/log"
)

// Job is one scheduled unit of work.
type Job struct {
	Name     string
	Schedule string // standard five-field cron expression
	// RunOnStart also runs the job once when the scheduler starts, to catch
	// up on anything missed while the worker was down.
	RunOnStart bool
	Timeout    time.Duration
	Run        func(ctx context.Context) error
}

// Scheduler runs jobs on their schedules. A job never overlaps with itself:
// a tick that arrives while the previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	jobs   []Job
	logger *log.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

func NewScheduler(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentWorker)
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Add registers job. Invalid schedules are rejected here rather than at Start.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s: no run function", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.run(job) }); err != nil {
		return fmt.Errorf("job %s: schedule %q: %w", job.Name, job.Schedule, err)
	}
	s.jobs = append(s.jobs, job)
	s.logger.Info("Job scheduled", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// Start runs the start-up jobs and begins the schedule. Jobs stop when ctx
// is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, job := range s.jobs {
		if job.RunOnStart {
			go s.run(job)
		}
	}
	s.cron.Start()
}

// Stop halts the schedule and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	jobsDone := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.running.Wait()
		close(jobsDone)
	}()

	select {
	case <-jobsDone:
		s.logger.Info("Scheduler stopped", log.FieldOperation, log.OpShutdown)
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out", log.FieldOperation, log.OpShutdown)
		return ctx.Err()
	}
}

func (s *Scheduler) run(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	if ctx == nil || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.InfoContext(ctx, "Job started", "job", job.Name)

	err := safeRun(ctx, job.Run)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		s.logger.ErrorContext(ctx, "Job failed",
			"job", job.Name,
			log.FieldDuration, elapsed,
			log.FieldError, err)
		return
	}
	s.logger.InfoContext(ctx, "Job finished", "job", job.Name, log.FieldDuration, elapsed)
}

func safeRun(ctx context.Context, f func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f(ctx)
}
