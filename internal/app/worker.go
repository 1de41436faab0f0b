package app

import (
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-signup/internal/jobs"
	"github.com/odyssey-erp/odyssey-signup/jobs"
)

// ConfirmationJobs is the part of the confirmation manager the worker drives.
type ConfirmationJobs interface {
	jobs.Expirer
	jobs.Sweeper
}

// NewConfirmationWorker builds the asynq worker that expires confirmations
// and runs the sweep cron. The same worker runs standalone in cmd/worker
// and embedded in cmd/odyssey.
func NewConfirmationWorker(cfg *Config, opts asynq.RedisClientOpt, confirmations ConfirmationJobs, logger *slog.Logger, metrics *jobmetrics.Metrics) (*jobs.Worker, error) {
	expireJob := jobs.NewExpireJob(confirmations, logger, metrics)
	sweepJob := jobs.NewSweepJob(confirmations, logger, metrics)

	return jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   opts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskConfirmationExpire, Handler: expireJob.Handle},
			{Type: jobs.TaskConfirmationSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepSchedule, Task: jobs.NewSweepTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
}
