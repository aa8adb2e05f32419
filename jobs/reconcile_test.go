package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookkeeping/internal/docstore/memory"
	jobmetrics "github.com/odyssey-erp/bookkeeping/internal/jobs"
	"github.com/odyssey-erp/bookkeeping/internal/ledger"
)

type reconcileFixture struct {
	ctx      context.Context
	store    *memory.Store
	svc      *ledger.Service
	job      *ReconcileJob
	registry *prometheus.Registry
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	svc := ledger.NewService(store, logger)
	registry := prometheus.NewRegistry()
	job := NewReconcileJob(svc.Balancer(), ledger.NewOpenPeriodLocator(store), logger, jobmetrics.NewMetrics(registry))
	return &reconcileFixture{ctx: context.Background(), store: store, svc: svc, job: job, registry: registry}
}

func (f *reconcileFixture) counter(t *testing.T, name string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func reconcileTask(t *testing.T, periodID int64) *asynq.Task {
	t.Helper()
	task, err := NewReconcileTask(periodID)
	require.NoError(t, err)
	return task
}

func TestReconcileRepairsDrift(t *testing.T) {
	f := newReconcileFixture(t)
	p, err := f.svc.CreatePeriod(f.ctx, 1, ledger.CreatePeriodInput{})
	require.NoError(t, err)
	a, err := f.svc.CreateAccount(f.ctx, 1, p.ID, ledger.CreateAccountInput{Type: ledger.AccountTypeResult})
	require.NoError(t, err)
	_, err = f.svc.CreateRecord(f.ctx, 1, a.ID, ledger.RecordInput{Value: 40, ValueType: ledger.Credit})
	require.NoError(t, err)

	require.NoError(t, f.store.SetMeta(f.ctx, a.ID, ledger.MetaRecordCount, 7))
	require.NoError(t, f.store.SetMeta(f.ctx, p.ID, ledger.MetaEndValue, 999.0))

	require.NoError(t, f.job.Handle(f.ctx, reconcileTask(t, 0)))

	got, err := f.svc.GetAccount(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RecordCount)
	period, err := f.svc.GetPeriod(f.ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 40, period.EndValue, 1e-9)
	assert.Equal(t, 1, period.RecordCount)

	assert.GreaterOrEqual(t, f.counter(t, "ledger_reconcile_drift_total"), 2.0)
	assert.Equal(t, 1.0, f.counter(t, "ledger_jobs_total"))

	report, err := f.job.Run(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Drifts)
}

func TestReconcileWithoutOpenPeriodIsNoOp(t *testing.T) {
	f := newReconcileFixture(t)

	require.NoError(t, f.job.Handle(f.ctx, reconcileTask(t, 0)))
	assert.Zero(t, f.counter(t, "ledger_jobs_failures_total"))
}

func TestReconcileSkipsRetryOnBadInput(t *testing.T) {
	f := newReconcileFixture(t)

	err := f.job.Handle(f.ctx, asynq.NewTask(TaskLedgerReconcile, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = f.job.Handle(f.ctx, reconcileTask(t, 404))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 1.0, f.counter(t, "ledger_jobs_failures_total"))
}

func TestReconcileTaskPayload(t *testing.T) {
	task := reconcileTask(t, 12)
	assert.Equal(t, TaskLedgerReconcile, task.Type())

	var payload ReconcilePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, int64(12), payload.PeriodID)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats QueueStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, QueueDefault, stats.Queue)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}
