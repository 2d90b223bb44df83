// Package cron runs the scheduled invoicing jobs under a cluster-wide lease.
package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/metrics"
)

const defaultEvery = time.Hour

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Lease grants one scheduler instance the right to run a tick.
type Lease interface {
	// Hold runs fn while the lease is held. held is false when another
	// instance owns it, in which case fn is not called.
	Hold(ctx context.Context, fn func(context.Context) error) (held bool, err error)
}

type SchedulerParams struct {
	Logger  *logger.Logger
	Lease   Lease
	Jobs    []Job
	Metrics *metrics.JobMetrics
	Every   time.Duration
}

// Scheduler runs its jobs in order once per tick.
type Scheduler struct {
	logg    *logger.Logger
	lease   Lease
	jobs    []Job
	metrics *metrics.JobMetrics
	every   time.Duration
}

func NewScheduler(p SchedulerParams) (*Scheduler, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.Lease == nil:
		return nil, errors.New("lease is required")
	}
	s := &Scheduler{logg: p.Logger, lease: p.Lease, metrics: p.Metrics, every: p.Every}
	for _, j := range p.Jobs {
		if j != nil {
			s.jobs = append(s.jobs, j)
		}
	}
	if len(s.jobs) == 0 {
		return nil, errors.New("at least one job is required")
	}
	if s.every <= 0 {
		s.every = defaultEvery
	}
	return s, nil
}

// Run ticks immediately and then every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx); err != nil {
			s.logg.Error(ctx, "scheduled tick failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs every job once if the lease can be taken. A failing job does not
// stop the ones after it; all failures come back combined.
func (s *Scheduler) Tick(ctx context.Context) error {
	held, err := s.lease.Hold(ctx, func(ctx context.Context) error {
		var errs error
		for _, job := range s.jobs {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			errs = multierr.Append(errs, s.run(ctx, job))
		}
		return errs
	})
	if !held && err == nil {
		s.logg.Info(ctx, "lease held elsewhere, skipping tick")
	}
	return err
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	err := job.Run(ctx)
	took := time.Since(start)
	s.metrics.ObserveJob(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Info(ctx, "job done")
	return nil
}
