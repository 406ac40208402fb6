// Package metrics provides Prometheus instrumentation for the job
// scheduler, tool dispatch pipeline, provider failover chain, and
// sandbox container manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized set of Prometheus collectors. Construct one
// with New and thread it through the components that instrument it;
// the zero value is not usable.
type Metrics struct {
	// JobsStarted counts jobs entering Running.
	JobsStarted *prometheus.CounterVec

	// JobsCompleted counts jobs reaching a terminal state.
	// Labels: state (completed|failed|cancelled)
	JobsCompleted *prometheus.CounterVec

	// JobDuration measures wall-clock time from Running to terminal.
	JobDuration *prometheus.HistogramVec

	// JobIterations records how many scheduler turns a job took before
	// reaching a terminal state.
	JobIterations *prometheus.HistogramVec

	// JobRepairAttempts counts stuck-recovery attempts per job.
	JobRepairAttempts *prometheus.CounterVec

	// LLMRequestDuration measures provider call latency.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestTotal counts provider calls by outcome.
	// Labels: provider, model, status (success|error)
	LLMRequestTotal *prometheus.CounterVec

	// LLMTokensTotal tracks token consumption.
	// Labels: provider, model, kind (input|output)
	LLMTokensTotal *prometheus.CounterVec

	// LLMFailoverTotal counts a failover chain advancing past a leg.
	// Labels: from_provider, to_provider, reason
	LLMFailoverTotal *prometheus.CounterVec

	// ToolExecutionTotal counts tool dispatches by outcome.
	// Labels: tool, status (success|error)
	ToolExecutionTotal *prometheus.CounterVec

	// ToolExecutionDuration measures tool dispatch latency.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolRetryTotal counts DispatchWithRetry attempts beyond the first.
	// Labels: tool
	ToolRetryTotal *prometheus.CounterVec

	// SandboxJobsActive gauges containers currently Running.
	SandboxJobsActive prometheus.Gauge

	// SandboxJobDuration measures container lifetime from Creating to terminal.
	// Labels: status (stopped|failed)
	SandboxJobDuration *prometheus.HistogramVec
}

// New builds and registers the full collector set with Prometheus's
// default registry. Call once at process startup.
func New() *Metrics {
	return &Metrics{
		JobsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ironclaw_jobs_started_total",
				Help: "Total number of jobs that entered the Running state",
			},
			nil,
		),
		JobsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ironclaw_jobs_completed_total",
				Help: "Total number of jobs reaching a terminal state, by state",
			},
			[]string{"state"},
		),
		JobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ironclaw_job_duration_seconds",
				Help:    "Job wall-clock duration from start to terminal state",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
			},
			[]string{"state"},
		),
		JobIterations: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ironclaw_job_iterations",
				Help:    "Number of scheduler turns a job took before reaching a terminal state",
				Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 50},
			},
			[]string{"state"},
		),
		JobRepairAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ironclaw_job_repair_attempts_total",
				Help: "Total number of stuck-job repair attempts",
			},
			nil,
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ironclaw_llm_request_duration_seconds",
				Help:    "Duration of LLM provider requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ironclaw_llm_requests_total",
				Help: "Total number of LLM provider requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ironclaw_llm_tokens_total",
				Help: "Total tokens consumed by provider, model, and kind",
			},
			[]string{"provider", "model", "kind"},
		),
		LLMFailoverTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ironclaw_llm_failover_total",
				Help: "Total number of times the failover chain advanced past a provider",
			},
			[]string{"from_provider", "to_provider", "reason"},
		),
		ToolExecutionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ironclaw_tool_executions_total",
				Help: "Total number of tool dispatches by tool and status",
			},
			[]string{"tool", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ironclaw_tool_execution_duration_seconds",
				Help:    "Duration of tool dispatches in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"tool"},
		),
		ToolRetryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ironclaw_tool_retries_total",
				Help: "Total number of tool dispatch retry attempts beyond the first",
			},
			[]string{"tool"},
		),
		SandboxJobsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ironclaw_sandbox_jobs_active",
				Help: "Current number of sandbox container jobs in the Running state",
			},
		),
		SandboxJobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ironclaw_sandbox_job_duration_seconds",
				Help:    "Sandbox container job duration from Creating to terminal state",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
	}
}
