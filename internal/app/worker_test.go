package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConfirmations struct{}

func (stubConfirmations) Expire(ctx context.Context, token string) error { return nil }

func (stubConfirmations) Sweep(ctx context.Context) (int64, error) { return 0, nil }

func TestNewConfirmationWorker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &Config{SweepSchedule: "*/5 * * * *", WorkerConcurrency: 2}

	worker, err := NewConfirmationWorker(cfg, asynq.RedisClientOpt{Addr: mr.Addr()}, stubConfirmations{}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, worker)
}

func TestNewConfirmationWorkerRejectsBadCron(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &Config{SweepSchedule: "every now and then"}

	_, err := NewConfirmationWorker(cfg, asynq.RedisClientOpt{Addr: mr.Addr()}, stubConfirmations{}, nil, nil)
	assert.Error(t, err)
}
