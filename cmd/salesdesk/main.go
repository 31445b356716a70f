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
	"golang.org/x/sync/errgroup"

	"github.com/salesdesk/salesdesk/internal/admin"
	"github.com/salesdesk/salesdesk/internal/app"
	"github.com/salesdesk/salesdesk/internal/auth"
	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/clients"
	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/platform/cache"
	"github.com/salesdesk/salesdesk/internal/platform/db"
	"github.com/salesdesk/salesdesk/internal/sales"
	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/internal/view"
	"github.com/salesdesk/salesdesk/jobs"
	"github.com/salesdesk/salesdesk/report"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	authzMetrics := authz.NewMetrics(metrics.Registerer())

	authzRepo := authz.NewRepository(dbpool)
	registry := authz.NewRegistry(authzRepo, logger, authzMetrics)
	guard := authz.Guard{
		Identity:    authz.SessionIdentity,
		LoginPath:   "/auth/login",
		LandingPath: "/",
		Loading:     app.LoadingPage(templates, logger),
		Logger:      logger,
		Metrics:     authzMetrics,
	}
	resolver := authz.Resolver{Registry: registry, SettleWait: cfg.AuthzSettleWait, Logger: logger}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)
	authHandler.OnSessionEnd(registry.Forget)

	redisOpts := cfg.Redis().Queue()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	clientService := clients.NewService(clients.NewRepository(dbpool), logger, authzMetrics)
	salesService := sales.NewService(sales.NewRepository(dbpool), logger, authzMetrics)
	adminService := admin.NewService(admin.NewRepository(dbpool), authzRepo, jobClient, logger, authzMetrics)
	reportClient := report.NewClient(cfg.GotenbergURL)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Metrics:        metrics,
		Resolver:       resolver,
		Guard:          guard,
		AuthHandler:    authHandler,
		ClientsHandler: clients.NewHandler(logger, clientService, templates, csrfManager, guard),
		SalesHandler:   sales.NewHandler(logger, salesService, clientService, reportClient, templates, csrfManager, guard),
		AdminHandler:   admin.NewHandler(logger, adminService, templates, csrfManager, guard),
		ReportHandler:  report.NewHandler(reportClient, logger),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Dashboard:      app.ServiceDashboard{Clients: clientService, Sales: salesService},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx, cfg.AuthzSweepInterval, cfg.AuthzIdleTTL)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
