package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "matrix"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	Placements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "placement",
			Name:      "operations_total",
			Help:      "Placement reservations, finalizations and releases by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	LevelCrossings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "levels",
			Name:      "crossings_total",
			Help:      "Level crossing events emitted, by level.",
		},
		[]string{"level"},
	)

	Bonuses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "bonus_transitions_total",
			Help:      "Bonus state transitions by reward kind and resulting status.",
		},
		[]string{"kind", "status"},
	)

	Claims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "claim_transitions_total",
			Help:      "Reward claim transitions by resulting status.",
		},
		[]string{"status"},
	)

	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by direction, category and outcome.",
		},
		[]string{"direction", "category", "outcome"},
	)

	LedgerDrift = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "drifted_wallets",
			Help:      "Wallets whose balance disagreed with their transaction log at the last reconciliation.",
		},
	)
)
