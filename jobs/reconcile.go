package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/bookkeeping/internal/jobs"
	"github.com/odyssey-erp/bookkeeping/internal/ledger"
)

// Reconciler recounts a period. *ledger.Balancer satisfies it.
type Reconciler interface {
	ReconcilePeriod(ctx context.Context, periodID int64) (ledger.ReconcileReport, error)
}

// ReconcileJob handles TaskLedgerReconcile.
type ReconcileJob struct {
	Reconciler Reconciler
	Resolver   ledger.PeriodResolver
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconcile handler.
func NewReconcileJob(reconciler Reconciler, resolver ledger.PeriodResolver, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Reconciler: reconciler, Resolver: resolver, Logger: logger, Metrics: metrics}
}

// Handle executes one reconcile run.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reconcile: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	_, err := j.Run(ctx, payload.PeriodID)
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("reconcile: %v: %w", err, asynq.SkipRetry)
	}
	return err
}

// Run reconciles periodID, or the current open period when it is zero. A missing
// open period is not an error.
func (j *ReconcileJob) Run(ctx context.Context, periodID int64) (report ledger.ReconcileReport, err error) {
	tracker := j.Metrics.Track(TaskLedgerReconcile)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger()
	if periodID == 0 {
		if j.Resolver == nil {
			return report, errors.New("reconcile: no period given and no resolver configured")
		}
		periodID, err = j.Resolver.CurrentPeriodID(ctx)
		if errors.Is(err, ledger.ErrNoOpenPeriod) {
			logger.Info("reconcile skipped, no open period")
			return report, nil
		}
		if err != nil {
			return report, err
		}
	}

	start := time.Now()
	logger = logger.With(slog.Int64("period_id", periodID))
	report, err = j.Reconciler.ReconcilePeriod(ctx, periodID)
	if err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return report, err
	}

	byField := make(map[string]int)
	for _, d := range report.Drifts {
		logger.Warn("aggregate drift corrected",
			slog.Int64("entity_id", d.EntityID),
			slog.String("field", d.Field),
			slog.Float64("stored", d.Stored),
			slog.Float64("actual", d.Actual),
		)
		byField[d.Field]++
	}
	for field, n := range byField {
		j.Metrics.AddDrift(field, n)
	}

	logger.Info("reconcile completed",
		slog.Int("accounts", report.AccountCount),
		slog.Int("records", report.RecordCount),
		slog.Float64("end_value", report.EndValue),
		slog.Int("drifts", len(report.Drifts)),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcile))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcile))
}
