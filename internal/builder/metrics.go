package builder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codegraph",
			Subsystem: "builder",
			Name:      "nodes_created_total",
			Help:      "Graph nodes created, by kind (function, parse, position, definition).",
		},
		[]string{"kind"},
	)

	nodeRevisits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codegraph",
			Subsystem: "builder",
			Name:      "node_revisits_total",
			Help:      "Visits to a node that was already in the map.",
		},
	)

	resolveAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codegraph",
			Subsystem: "builder",
			Name:      "resolve_attempts_total",
			Help:      "Definition requests sent for call sites, by outcome.",
		},
		[]string{"outcome"},
	)

	excludedTargets = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codegraph",
			Subsystem: "builder",
			Name:      "excluded_targets_total",
			Help:      "Definition targets dropped by the exclusion boundary.",
		},
	)

	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codegraph",
			Subsystem: "builder",
			Name:      "build_duration_seconds",
			Help:      "Wall time of a whole graph build.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"status"},
	)
)
