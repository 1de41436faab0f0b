package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-signup/internal/accounts"
	"github.com/odyssey-erp/odyssey-signup/internal/app"
	"github.com/odyssey-erp/odyssey-signup/internal/auth"
	"github.com/odyssey-erp/odyssey-signup/internal/confirmation"
	"github.com/odyssey-erp/odyssey-signup/internal/credential"
	jobmetrics "github.com/odyssey-erp/odyssey-signup/internal/jobs"
	"github.com/odyssey-erp/odyssey-signup/internal/notify"
	"github.com/odyssey-erp/odyssey-signup/internal/observability"
	"github.com/odyssey-erp/odyssey-signup/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-signup/internal/platform/db"
	"github.com/odyssey-erp/odyssey-signup/internal/shared"
	"github.com/odyssey-erp/odyssey-signup/internal/view"
	"github.com/odyssey-erp/odyssey-signup/jobs"
)

const sessionCookieName = "signup_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr}
	needsQueue := cfg.ExpiryScheduler == app.SchedulerAsynq || cfg.EmbeddedWorker
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		if needsQueue {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Warn("redis unavailable, job endpoints disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	hasher := credential.NewHasher(cfg.Salt, credential.DefaultParams)
	links := notify.LinkBuilder{Domain: cfg.Domain, Port: cfg.Port}

	dispatcher, err := newDispatcher(cfg, links, logger)
	if err != nil {
		logger.Error("init mail dispatcher", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		scheduler   confirmation.Scheduler
		timer       *jobs.TimerScheduler
		queueClient *jobs.Client
	)
	switch cfg.ExpiryScheduler {
	case app.SchedulerTimer:
		timer = jobs.NewTimerScheduler(logger)
		defer timer.Close()
		scheduler = timer
	default:
		queueClient = jobs.NewClient(redisOpts.AsynqOptions())
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn("queue client close", slog.Any("error", err))
			}
		}()
		scheduler = queueClient
	}

	manager := confirmation.NewManager(confirmation.Deps{
		Repository: accounts.NewRepository(dbpool),
		Hasher:     hasher,
		Dispatcher: dispatcher,
		Scheduler:  scheduler,
		Recorder:   jobMetrics,
		Logger:     logger,
	}, confirmation.Config{TTL: cfg.ConfirmationTTL})
	if timer != nil {
		timer.Bind(manager)
	}

	sessionManager := shared.NewSessionManager(sessionCookieName, []byte(cfg.SessionSecret), cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	authService := auth.NewService(accounts.NewRepository(dbpool), hasher)
	authHandler := auth.NewHandler(logger, authService, manager, templates, sessionManager, csrfManager)

	healthChecks := map[string]app.Pinger{"postgres": dbpool}
	var jobHandler *jobs.Handler
	if redisClient != nil {
		healthChecks["redis"] = redisPinger{client: redisClient}
		inspector := asynq.NewInspector(redisOpts.AsynqOptions())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
		HealthChecks:   healthChecks,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if timer != nil && !cfg.EmbeddedWorker {
		// no cron without a worker, so sweep in process once per TTL
		g.Go(func() error {
			sweepLoop(gctx, manager, cfg.ConfirmationTTL, logger)
			return nil
		})
	}
	if cfg.EmbeddedWorker {
		worker, err := app.NewConfirmationWorker(cfg, redisOpts.AsynqOptions(), manager, logger, jobMetrics)
		if err != nil {
			logger.Error("init worker", slog.Any("error", err))
			os.Exit(1)
		}
		g.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
	}
	manager.Wait()
}

func sweepLoop(ctx context.Context, manager *confirmation.Manager, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := manager.Sweep(ctx)
			if err != nil {
				logger.Error("confirmation sweep", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Info("confirmation sweep", slog.Int64("removed", removed))
			}
		}
	}
}

func newDispatcher(cfg *app.Config, links notify.LinkBuilder, logger *slog.Logger) (notify.Dispatcher, error) {
	if cfg.MailDriver == app.MailDriverLog {
		return notify.NewLogDispatcher(logger, links), nil
	}
	return notify.NewSMTPDispatcher(notify.SMTPConfig{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		Username:   cfg.SMTPUsername,
		Password:   cfg.SMTPPassword,
		From:       cfg.SMTPFrom,
		ServerName: cfg.ServerName,
	}, links)
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
