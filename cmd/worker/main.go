package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/bookkeeping/internal/app"
	jobmetrics "github.com/odyssey-erp/bookkeeping/internal/jobs"
	"github.com/odyssey-erp/bookkeeping/jobs"
)

func main() {
	if app.SkipStartup("worker") {
		return
	}
	if err := run(); err != nil {
		slog.Default().Error("worker exited", slog.Any("error", err))
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
	if l.Redis == nil {
		return errors.New("worker: redis is required")
	}

	reconcile := jobs.NewReconcileJob(l.Service.Balancer(), l.Resolver, logger, jobmetrics.NewMetrics(nil))
	nightly, err := jobs.NewReconcileTask(0)
	if err != nil {
		return err
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerReconcile, Handler: reconcile.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileCron, Task: nightly},
		},
	})
	if err != nil {
		return err
	}

	logger.Info("worker started", slog.String("reconcile_cron", cfg.ReconcileCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
