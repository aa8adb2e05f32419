package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("ledger:reconcile").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("ledger:reconcile").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:reconcile", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:reconcile", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:reconcile")))
}

func TestAddDrift(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddDrift("record_count", 2)
	m.AddDrift("record_count", 0)
	m.AddDrift("end_value", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.drift.WithLabelValues("record_count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.drift.WithLabelValues("end_value")))

	var nilMetrics *Metrics
	nilMetrics.AddDrift("to_value", 3)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
