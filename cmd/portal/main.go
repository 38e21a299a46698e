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

	"github.com/bizportal/portal/internal/app"
	"github.com/bizportal/portal/internal/audit"
	"github.com/bizportal/portal/internal/auth"
	"github.com/bizportal/portal/internal/contracts"
	"github.com/bizportal/portal/internal/dashboard"
	"github.com/bizportal/portal/internal/drafting"
	"github.com/bizportal/portal/internal/invoicing"
	"github.com/bizportal/portal/internal/observability"
	"github.com/bizportal/portal/internal/onboarding"
	"github.com/bizportal/portal/internal/platform/cache"
	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/recruiting"
	"github.com/bizportal/portal/internal/rfp"
	"github.com/bizportal/portal/internal/sales"
	"github.com/bizportal/portal/internal/shared"
	"github.com/bizportal/portal/internal/shiftreports"
	"github.com/bizportal/portal/internal/users"
	"github.com/bizportal/portal/jobs"
	"github.com/bizportal/portal/report"
)

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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	drafter, err := drafting.New(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, logger)
	if err != nil {
		logger.Error("init drafting", slog.Any("error", err))
		os.Exit(1)
	}
	pdfClient := report.NewClient(cfg.GotenbergURL)
	if err := pdfClient.Ping(ctx); err != nil {
		logger.Warn("gotenberg ping", slog.Any("error", err))
	}

	rbacService := rbac.NewService(rbac.NewRepository(dbpool))
	rbacMiddleware := rbac.Middleware{Logger: logger}

	tokens := auth.NewTokenStore(redisClient, cfg.TokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens, rbacService, metrics, auditLogger, logger)
	usersService := users.NewService(users.NewRepository(dbpool), authService, auditLogger)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(salesRepo, jobClient, auditLogger)

	rfpService := rfp.NewService(rfp.NewRepository(dbpool), drafter, auditLogger)

	contractRenderer, err := contracts.NewRenderer(pdfClient)
	if err != nil {
		logger.Error("init contract renderer", slog.Any("error", err))
		os.Exit(1)
	}
	contractsService := contracts.NewService(contracts.NewRepository(dbpool), contractRenderer, drafter, auditLogger, cfg.CompanyName)

	recruitingService := recruiting.NewService(recruiting.NewRepository(dbpool), approvalRecorder, jobClient, auditLogger, logger)
	onboardingService := onboarding.NewService(onboarding.NewRepository(dbpool), auditLogger)

	var invoicePDF invoicing.PDFRenderer
	if pdfClient.Enabled() {
		invoicePDF = pdfClient
	}
	invoicingService, err := invoicing.NewService(invoicing.NewRepository(dbpool), invoicing.Options{
		Idempotency: idempotencyStore,
		Approvals:   approvalRecorder,
		PDF:         invoicePDF,
		Audit:       auditLogger,
		Logger:      logger,
		Provider:    cfg.CompanyName,
	})
	if err != nil {
		logger.Error("init invoicing", slog.Any("error", err))
		os.Exit(1)
	}

	shiftService := shiftreports.NewService(shiftreports.NewRepository(dbpool), auditLogger)

	dashboardService := dashboard.NewService(
		salesService,
		rfpService,
		dashboard.NewRepository(dbpool),
		cache.NewJSON(redisClient, "portal:dashboard:", dashboard.CacheTTL),
	)

	auditService := audit.NewService(audit.NewRepository(dbpool))

	router := app.NewRouter(app.RouterParams{
		Logger:    logger,
		Config:    cfg,
		Metrics:   metrics,
		Principal: authService,
		RBAC:      rbacMiddleware,
		Ready: map[string]app.Check{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
		AuthHandler:         auth.NewHandler(logger, authService, app.LoginRateLimit()),
		UsersHandler:        users.NewHandler(logger, usersService, rbacMiddleware),
		AccessHandler:       rbac.NewHandler(logger, rbacService),
		SalesHandler:        sales.NewHandler(logger, salesService, rbacMiddleware, metrics),
		RFPHandler:          rfp.NewHandler(logger, rfpService, rbacMiddleware, metrics),
		ContractsHandler:    contracts.NewHandler(logger, contractsService, rbacMiddleware, metrics),
		RecruitingHandler:   recruiting.NewHandler(logger, recruitingService, rbacMiddleware, metrics),
		OnboardingHandler:   onboarding.NewHandler(logger, onboardingService, rbacMiddleware),
		InvoicingHandler:    invoicing.NewHandler(logger, invoicingService, rbacMiddleware, metrics),
		ShiftReportsHandler: shiftreports.NewHandler(logger, shiftService, rbacMiddleware, metrics),
		DashboardHandler:    dashboard.NewHandler(logger, dashboardService, rbacMiddleware),
		AuditHandler:        audit.NewHandler(logger, auditService, rbacMiddleware, metrics),
		JobHandler:          jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
