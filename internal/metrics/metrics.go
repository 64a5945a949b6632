package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelmesh_events_ingested_total",
			Help: "Events submitted for ingestion by type and result",
		},
		[]string{"event", "result"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinelmesh_ingest_duration_seconds",
			Help:    "Time to store an event and run detection on it",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Detection
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelmesh_alerts_created_total",
			Help: "Alerts created by rule",
		},
		[]string{"rule"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelmesh_alerts_suppressed_total",
			Help: "Alerts withheld because a recent alert exists, by rule and reason",
		},
		[]string{"rule", "reason"},
	)

	RuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelmesh_rule_errors_total",
			Help: "Rule evaluations that failed",
		},
		[]string{"rule"},
	)

	// Lifecycle
	AlertActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelmesh_alert_actions_total",
			Help: "Lifecycle actions applied to alerts",
		},
		[]string{"action"},
	)

	// Notifications
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelmesh_publish_errors_total",
			Help: "Alert notifications that could not be published",
		},
		[]string{"subject"},
	)
)
