package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	require.NoError(t, m.Track("confirmation:expire").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("confirmation:expire").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("confirmation:expire", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("confirmation:expire", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("confirmation:expire")))
}

func TestRecordRegistration(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordRegistration("started")
	m.RecordRegistration("started")
	m.RecordRegistration("")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.registrations.WithLabelValues("started")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRegistration("started")
	require.NoError(t, m.Track("job").End(nil))
}
