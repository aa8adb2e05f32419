package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile recounts the aggregates of one period.
	TaskLedgerReconcile = "ledger:reconcile"
)

// ReconcilePayload names the period to reconcile. Zero means the current open period.
type ReconcilePayload struct {
	PeriodID int64 `json:"period_id"`
}

// NewReconcileTask constructs an Asynq task.
func NewReconcileTask(periodID int64) (*asynq.Task, error) {
	data, err := json.Marshal(ReconcilePayload{PeriodID: periodID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, data,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	), nil
}
