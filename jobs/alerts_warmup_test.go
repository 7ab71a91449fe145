package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/larder-erp/larder-erp/internal/shared"
)

type fakeWarmer struct {
	count int
	err   error
	calls int
}

func (f *fakeWarmer) Warm(ctx context.Context) (int, error) {
	f.calls++
	return f.count, f.err
}

func TestAlertsWarmupHandleDelegates(t *testing.T) {
	warmer := &fakeWarmer{count: 3}
	job := NewAlertsWarmupJob(warmer, nil, nil)

	err := job.Handle(context.Background(), NewAlertsWarmupTask())
	require.NoError(t, err)
	require.Equal(t, 1, warmer.calls)
}

func TestAlertsWarmupHandlePropagatesFailure(t *testing.T) {
	warmer := &fakeWarmer{err: errors.New("redis down")}
	job := NewAlertsWarmupJob(warmer, nil, nil)

	err := job.Handle(context.Background(), NewAlertsWarmupTask())
	require.ErrorContains(t, err, "redis down")
}

func TestAlertsWarmupHandleUnconfigured(t *testing.T) {
	job := &AlertsWarmupJob{}
	require.Error(t, job.Handle(context.Background(), NewAlertsWarmupTask()))
}

func TestIdempotencyCleanupSkipsRetryOnBadPayload(t *testing.T) {
	job := NewIdempotencyCleanupJob(shared.NewIdempotencyStore(nil), nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte("{bad")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
