package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracked links created, partitioned by whether an item id was recognised
	clicksRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_clicks_recorded_total",
			Help: "Total number of tracked links created",
		},
		[]string{"item_id"},
	)

	// Redirects served, partitioned by outcome: first_click, replay, unknown, error
	redirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_redirects_total",
			Help: "Total number of tracked link redirects",
		},
		[]string{"result"},
	)

	// Conversions persisted, partitioned by method and confidence tier
	conversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_conversions_total",
			Help: "Total number of clicks converted by correlation runs",
		},
		[]string{"method", "tier"},
	)

	// Correlation passes, partitioned by final status and dry run flag
	correlationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_correlation_runs_total",
			Help: "Total number of correlation runs",
		},
		[]string{"status", "dry_run"},
	)

	correlationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attribution_correlation_run_duration_seconds",
			Help:    "Duration of correlation runs in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	correlationErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attribution_correlation_errors_total",
			Help: "Per-order and per-page errors counted by correlation runs",
		},
	)
)

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
