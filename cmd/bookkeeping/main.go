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

	"github.com/odyssey-erp/bookkeeping/internal/app"
	audithttp "github.com/odyssey-erp/bookkeeping/internal/audit/http"
	ledgerhttp "github.com/odyssey-erp/bookkeeping/internal/ledger/http"
	"github.com/odyssey-erp/bookkeeping/internal/observability"
	"github.com/odyssey-erp/bookkeeping/internal/platform/cache"
	"github.com/odyssey-erp/bookkeeping/internal/rbac"
	"github.com/odyssey-erp/bookkeeping/jobs"
)

func main() {
	if app.SkipStartup("server") {
		return
	}
	if err := run(); err != nil {
		slog.Default().Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	l, err := app.OpenLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer l.Close()

	metrics := observability.NewMetrics()
	authz := rbac.NewAuthorizer(l.Service, l.Resolver, cfg.GlobalSpectators)
	rbacMW := rbac.Middleware{Authorizer: authz, Roles: l.Roles, Logger: logger}

	ledgerHandler := ledgerhttp.NewHandler(logger, l.Service, l.Resolver, rbacMW, app.LedgerBasePath)
	ready := map[string]app.HealthCheck{}
	var jobHandler *jobs.Handler
	if l.Redis != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		queue := jobs.NewClient(redisOpts)
		defer func() { _ = queue.Close() }()
		ledgerHandler.WithQueue(queue)

		inspector := asynq.NewInspector(redisOpts)
		defer func() { _ = inspector.Close() }()
		jobHandler = jobs.NewHandler(inspector, logger)

		ready["redis"] = func(r *http.Request) error { return cache.Ping(r.Context(), l.Redis) }
	}
	var auditHandler *audithttp.Handler
	if l.Pool != nil {
		auditHandler = audithttp.NewHandler(logger, l.Audit)
		ready["postgres"] = func(r *http.Request) error { return l.Pool.Ping(r.Context()) }
	}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		LedgerHandler:       ledgerHandler,
		CapabilitiesHandler: rbac.NewCapabilitiesHandler(authz),
		AuditHandler:        auditHandler,
		JobHandler:          jobHandler,
		RBACMiddleware:      rbacMW,
		Metrics:             metrics,
		Ready:               ready,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	logger.Info("http server stopped")
	return nil
}
