package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deps_builder_resolutions_total",
		Help: "Total number of dependency graph resolutions, labelled by status.",
	}, []string{"status"})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deps_builder_graph_nodes",
		Help: "Number of (module, configuration) nodes in the last resolved graph.",
	})

	CollapsedNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deps_builder_collapsed_nodes",
		Help: "Number of covered configurations collapsed in the last resolution.",
	})

	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deps_builder_fetches_total",
		Help: "Total number of module checkouts, labelled by status.",
	}, []string{"status"})

	BuildsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deps_builder_builds_started_total",
		Help: "Total number of node builds handed to a worker.",
	})

	BuildsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deps_builder_builds_finished_total",
		Help: "Total number of node builds finished, labelled by status.",
	}, []string{"status"})

	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deps_builder_build_duration_seconds",
		Help:    "Wall time of a single node build in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})

	BuildsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deps_builder_builds_in_flight",
		Help: "Number of node builds currently running.",
	})
)

// Status labels
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)
