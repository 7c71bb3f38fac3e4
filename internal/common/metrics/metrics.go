// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_webhooks_received_total",
			Help: "Analysis webhooks received, by upstream status and response code",
		},
		[]string{"status", "code"},
	)

	ReconciliationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_reconciliations_total",
			Help: "Reconciliation runs by outcome",
		},
		[]string{"outcome"},
	)

	ComplianceTiers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_final_tiers_total",
			Help: "Final compliance tiers written to companies",
		},
		[]string{"tier"},
	)

	ReportFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compliance_report_fetch_failures_total",
			Help: "Per-document report fetches that failed and were excluded from scoring",
		},
	)

	ReportCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_report_cache_lookups_total",
			Help: "Report cache lookups by result",
		},
		[]string{"result"},
	)

	StaleGenerationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compliance_stale_generations_failed_total",
			Help: "Companies force-failed by the staleness sweep",
		},
	)

	GenerationGateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_generation_gate_total",
			Help: "Generation gate decisions by plan",
		},
		[]string{"plan", "allowed"},
	)
)
