// Package scheduler re-runs the configured analysis on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// RunFunc executes one analysis run.
type RunFunc func(ctx context.Context) error

// Scheduler triggers a RunFunc periodically. Runs never overlap: a tick that
// fires while a run is in progress is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	timeout   time.Duration
	run       RunFunc
	logger    *slog.Logger
	job       *gocron.Job
}

// New creates a Scheduler. A non-positive timeout means runs are bounded only
// by Stop.
func New(interval, timeout time.Duration, run RunFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
		timeout:   timeout,
		run:       run,
		logger:    logger,
	}
}

// Start schedules the job and starts the underlying scheduler. The first run
// happens one interval after Start.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("scheduler: no interval configured; nothing to schedule")
		return nil
	}

	job, err := s.scheduler.Every(s.interval).SingletonMode().WaitForSchedule().Do(func() {
		runCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		}
		defer cancel()

		start := time.Now()
		s.logger.Info("scheduled run starting")
		if err := s.run(runCtx); err != nil {
			s.logger.Error("scheduled run failed", "error", err, "elapsed", time.Since(start))
			return
		}
		s.logger.Info("scheduled run completed", "elapsed", time.Since(start))
	})
	if err != nil {
		return err
	}
	s.job = job

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// NextRun returns when the job fires next, or the zero time when nothing is
// scheduled.
func (s *Scheduler) NextRun() time.Time {
	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
