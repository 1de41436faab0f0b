package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-signup/internal/jobs"
)

// Expirer deletes a pending confirmation by token.
type Expirer interface {
	Expire(ctx context.Context, token string) error
}

// Sweeper deletes every stale pending confirmation.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// ExpireJob processes TaskConfirmationExpire tasks.
type ExpireJob struct {
	expirer Expirer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewExpireJob constructs the expiry handler.
func NewExpireJob(expirer Expirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpireJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpireJob{expirer: expirer, logger: logger, metrics: metrics}
}

// Handle decodes the payload and expires the token. Store errors are
// returned so asynq retries with backoff.
func (j *ExpireJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ExpirePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Token == "" {
		j.logger.Warn("confirmation expire: bad payload")
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(TaskConfirmationExpire)
	if err := j.expirer.Expire(ctx, payload.Token); err != nil {
		j.logger.Error("confirmation expire", slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}

// SweepJob processes TaskConfirmationSweep tasks.
type SweepJob struct {
	sweeper Sweeper
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSweepJob constructs the sweep handler.
func NewSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepJob{sweeper: sweeper, logger: logger, metrics: metrics}
}

// Handle runs a sweep.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskConfirmationSweep)
	removed, err := j.sweeper.Sweep(ctx)
	if err != nil {
		j.logger.Error("confirmation sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	if removed > 0 {
		j.logger.Info("confirmation sweep", slog.Int64("removed", removed))
	}
	return tracker.End(nil)
}
