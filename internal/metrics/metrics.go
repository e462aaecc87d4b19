package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Worker lifecycle metrics
	WorkersStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextworker_workers_started_total",
			Help: "Total number of Temporal workers started",
		},
		[]string{"queue"},
	)

	WorkersStopped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextworker_workers_stopped_total",
			Help: "Total number of Temporal workers stopped",
		},
		[]string{"queue"},
	)

	ModulesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contextworker_modules_registered",
			Help: "Number of modules currently registered",
		},
	)

	// Sub-agent metrics
	SubAgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextworker_subagent_executions_total",
			Help: "Total number of sub-agent executions",
		},
		[]string{"agent_type", "status"},
	)

	SubAgentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contextworker_subagent_duration_seconds",
			Help:    "Sub-agent execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent_type"},
	)

	SubAgentAuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextworker_subagent_auth_failures_total",
			Help: "Sub-agent executions rejected by security validation",
		},
		[]string{"reason"},
	)

	// Brain recording metrics
	BrainStepsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextworker_brain_steps_recorded_total",
			Help: "Sub-agent lifecycle steps recorded in Brain",
		},
		[]string{"step", "outcome"},
	)

	// Schedule metrics
	SchedulesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextworker_schedules_created_total",
			Help: "Temporal schedules created (including idempotent re-creates)",
		},
		[]string{"schedule"},
	)

	// Retention metrics
	RetentionEpisodesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contextworker_retention_episodes_deleted_total",
			Help: "Episodes deleted by retention runs",
		},
	)

	RetentionFactsDistilled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contextworker_retention_facts_distilled_total",
			Help: "Facts distilled from episodes before deletion",
		},
	)

	// gRPC metrics
	GRPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contextworker_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	// Service discovery
	HeartbeatsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextworker_heartbeats_sent_total",
			Help: "Service discovery heartbeats sent",
		},
		[]string{"outcome"},
	)
)

// RecordGRPCMetrics records timing for a gRPC method invocation.
func RecordGRPCMetrics(method, status string, seconds float64) {
	GRPCRequestDuration.WithLabelValues(method, status).Observe(seconds)
}
