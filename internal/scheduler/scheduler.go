// Package scheduler triggers pipeline runs on a fixed interval or at a
// daily clock time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Job is one schedulable unit of work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config selects the trigger. Mode "interval" fires every Interval; mode
// "daily" fires at the next occurrence of At (HH:MM, local time).
type Config struct {
	Mode     string
	Interval time.Duration
	At       string
}

// Scheduler runs its jobs sequentially on each trigger. A failing job is
// logged and does not stop later jobs or later runs.
type Scheduler struct {
	cfg    Config
	jobs   []Job
	logger *zap.Logger
	// now is replaceable for tests.
	now func() time.Time
}

// New constructs a Scheduler.
func New(cfg Config, jobs []Job, logger *zap.Logger) (*Scheduler, error) {
	switch cfg.Mode {
	case "interval":
		if cfg.Interval <= 0 {
			return nil, fmt.Errorf("schedule interval must be > 0")
		}
	case "daily":
		if _, err := time.Parse("15:04", cfg.At); err != nil {
			return nil, fmt.Errorf("parse schedule time %q: %w", cfg.At, err)
		}
	default:
		return nil, fmt.Errorf("unknown schedule mode %q", cfg.Mode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, jobs: jobs, logger: logger, now: time.Now}, nil
}

// Run blocks, firing the job list on each trigger until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		wait := s.untilNext()
		s.logger.Info("next scheduled run",
			zap.Duration("in", wait),
			zap.String("mode", s.cfg.Mode))

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		s.runOnce(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// RunOnce fires the job list immediately, outside the trigger loop.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		start := s.now()
		s.logger.Info("scheduled job starting", zap.String("job", job.Name))
		if err := job.Run(ctx); err != nil {
			s.logger.Error("scheduled job failed",
				zap.String("job", job.Name),
				zap.Duration("elapsed", s.now().Sub(start)),
				zap.Error(err))
			continue
		}
		s.logger.Info("scheduled job finished",
			zap.String("job", job.Name),
			zap.Duration("elapsed", s.now().Sub(start)))
	}
}

// untilNext computes the delay to the next trigger.
func (s *Scheduler) untilNext() time.Duration {
	if s.cfg.Mode == "interval" {
		return s.cfg.Interval
	}
	at, _ := time.Parse("15:04", s.cfg.At)
	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
