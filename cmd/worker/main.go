package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-signup/internal/accounts"
	"github.com/odyssey-erp/odyssey-signup/internal/app"
	"github.com/odyssey-erp/odyssey-signup/internal/confirmation"
	jobmetrics "github.com/odyssey-erp/odyssey-signup/internal/jobs"
	"github.com/odyssey-erp/odyssey-signup/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-signup/internal/platform/db"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobMetrics := jobmetrics.NewMetrics(nil)

	// expire and sweep only; no hasher, mailer or scheduler needed
	manager := confirmation.NewManager(confirmation.Deps{
		Repository: accounts.NewRepository(pool),
		Recorder:   jobMetrics,
		Logger:     logger,
	}, confirmation.Config{TTL: cfg.ConfirmationTTL})

	worker, err := app.NewConfirmationWorker(cfg, redisOpts.AsynqOptions(), manager, logger, jobMetrics)
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
