package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/metrics"
)

type openLease struct{ holds int }

func (l *openLease) Hold(ctx context.Context, fn func(context.Context) error) (bool, error) {
	l.holds++
	return true, fn(ctx)
}

type takenLease struct{}

func (takenLease) Hold(context.Context, func(context.Context) error) (bool, error) { return false, nil }

type countingJob struct {
	name string
	err  error
	runs int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func TestTickRunsEveryJobAndCombinesFailures(t *testing.T) {
	ok := &countingJob{name: "invoice-sweep"}
	bad := &countingJob{name: "outbox-prune", err: errors.New("disk full")}
	after := &countingJob{name: "after"}
	reg := prometheus.NewRegistry()

	s, err := NewScheduler(SchedulerParams{
		Logger:  logger.Nop(),
		Lease:   &openLease{},
		Jobs:    []Job{ok, nil, bad, after},
		Metrics: metrics.NewJobMetrics(reg),
	})
	require.NoError(t, err)

	err = s.Tick(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.ErrorContains(t, err, "outbox-prune: disk full")
	assert.Equal(t, []int{1, 1, 1}, []int{ok.runs, bad.runs, after.runs})
	series, err := testutil.GatherAndCount(reg, "scheduled_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, series)
}

func TestTickSkipsWithoutLease(t *testing.T) {
	job := &countingJob{name: "invoice-sweep"}
	s, err := NewScheduler(SchedulerParams{Logger: logger.Nop(), Lease: takenLease{}, Jobs: []Job{job}})
	require.NoError(t, err)

	require.NoError(t, s.Tick(context.Background()))
	assert.Zero(t, job.runs)
}

func TestTickStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "invoice-sweep"}
	s, err := NewScheduler(SchedulerParams{Logger: logger.Nop(), Lease: &openLease{}, Jobs: []Job{job}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Tick(ctx), context.Canceled)
	assert.Zero(t, job.runs)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	lease := &openLease{}
	job := &countingJob{name: "invoice-sweep"}
	s, err := NewScheduler(SchedulerParams{Logger: logger.Nop(), Lease: lease, Jobs: []Job{job}, Every: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)
	assert.GreaterOrEqual(t, job.runs, 2, "first tick runs immediately, then on the ticker")
}

func TestNewSchedulerValidates(t *testing.T) {
	_, err := NewScheduler(SchedulerParams{Lease: &openLease{}, Jobs: []Job{&countingJob{}}})
	assert.Error(t, err)
	_, err = NewScheduler(SchedulerParams{Logger: logger.Nop(), Jobs: []Job{&countingJob{}}})
	assert.Error(t, err)
	_, err = NewScheduler(SchedulerParams{Logger: logger.Nop(), Lease: &openLease{}, Jobs: []Job{nil}})
	assert.Error(t, err)
}
