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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bizportal/portal/internal/app"
	jobmetrics "github.com/bizportal/portal/internal/jobs"
	"github.com/bizportal/portal/internal/onboarding"
	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/sales"
	"github.com/bizportal/portal/internal/sales/signals"
	"github.com/bizportal/portal/internal/shared"
	"github.com/bizportal/portal/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	rules, err := loadRules(cfg.SignalRulesPath)
	if err != nil {
		logger.Error("load signal rules", slog.Any("error", err))
		os.Exit(1)
	}
	httpClient := &http.Client{Timeout: 20 * time.Second}
	limiter := signals.NewHostLimiter(cfg.SignalHostRPS, 1)
	ingestor := signals.NewIngestor(
		sales.NewRepository(pool),
		signals.NewScorer(rules),
		logger,
		signals.Options{Concurrency: cfg.SignalConcurrency, Recorder: metrics},
		signals.NewLever(httpClient, limiter, ""),
		signals.NewGreenhouse(httpClient, limiter, ""),
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	onboardingService := onboarding.NewService(onboarding.NewRepository(pool), shared.NopAuditor{})

	mailJob := &jobs.MailJob{
		Mailer: jobs.NewSMTPMailer(jobs.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}),
		Logger:  logger,
		Metrics: metrics,
	}
	pollJob := &jobs.SignalPollJob{Runner: ingestor, Logger: logger, Metrics: metrics}
	remindersJob := &jobs.RemindersJob{Source: onboardingService, Mail: jobClient, Logger: logger, Metrics: metrics}
	cleanupJob := &jobs.CleanupJob{Idempotency: shared.NewIdempotencyStore(pool), Logger: logger, Metrics: metrics}

	cron, err := jobs.DefaultCron()
	if err != nil {
		logger.Error("build cron tasks", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSignalsPoll, Handler: pollJob.Handle},
			{Type: jobs.TaskMailSend, Handler: mailJob.Handle},
			{Type: jobs.TaskOnboardingReminders, Handler: remindersJob.Handle},
			{Type: jobs.TaskMaintenanceCleanup, Handler: cleanupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadRules(path string) (signals.Rules, error) {
	if path == "" {
		return signals.DefaultRules()
	}
	return signals.LoadRules(path)
}
