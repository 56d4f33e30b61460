package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	require.NoError(t, metrics.Track("overdue_scan").End(nil))

	wantErr := errors.New("boom")
	require.ErrorIs(t, metrics.Track("overdue_scan").End(wantErr), wantErr)

	families, err := registry.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, label := range m.GetLabel() {
				key += "|" + label.GetValue()
			}
			if m.GetCounter() != nil {
				counts[key] = m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), counts["mizan_jobs_total|overdue_scan|success"])
	require.Equal(t, float64(1), counts["mizan_jobs_total|overdue_scan|failure"])
	require.Equal(t, float64(1), counts["mizan_jobs_failures_total|overdue_scan"])
}

func TestNilMetricsTrackerIsInert(t *testing.T) {
	var metrics *Metrics
	wantErr := errors.New("boom")
	require.ErrorIs(t, metrics.Track("anything").End(wantErr), wantErr)
	require.NoError(t, metrics.Track("anything").End(nil))
}
