package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironclaw/core/internal/metrics"
	"github.com/ironclaw/core/internal/providers"
	"github.com/ironclaw/core/internal/security"
	"github.com/ironclaw/core/internal/skills"
	"github.com/ironclaw/core/internal/telemetry"
	"github.com/ironclaw/core/internal/tools"
	"github.com/ironclaw/core/pkg/models"
)

// Config bounds one job's run through the scheduler loop.
type Config struct {
	// MaxIterations caps LLM↔tool round trips before the job is failed
	// with reason "max iterations".
	MaxIterations int

	// PerJobTimeout bounds the whole run; exceeding it fails the job
	// with reason "timed out".
	PerJobTimeout time.Duration

	// StuckCheckInterval is how often the sweep evaluates running jobs
	// for lack of progress.
	StuckCheckInterval time.Duration

	// MaxRepairAttempts bounds how many times a stuck job may be
	// nudged back to Running before it is failed with reason "stuck".
	MaxRepairAttempts uint32
}

// DefaultConfig mirrors the scheduler defaults: 20 round trips, a
// 15-minute wall-clock budget, a 30s stuck-check cadence, and three
// repair attempts before giving up.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      20,
		PerJobTimeout:      15 * time.Minute,
		StuckCheckInterval: 30 * time.Second,
		MaxRepairAttempts:  3,
	}
}

// SkillSource resolves the skills active for a job's current turn, used
// to compute the tool ceiling before every completion call.
type SkillSource interface {
	ActiveSkills(jobCtx *models.JobContext) []skills.ActiveSkill
}

// NoSkills is a SkillSource that never activates any skill — every tool
// is offered unattenuated.
type NoSkills struct{}

func (NoSkills) ActiveSkills(*models.JobContext) []skills.ActiveSkill { return nil }

// Scheduler drives jobs through the LLM↔tool loop described by Config,
// producing either a Completed job or a Failed/Cancelled job with a
// Fallback Deliverable attached to its JobContext metadata.
type Scheduler struct {
	store    *Store
	provider providers.LlmProvider
	executor *tools.Executor
	skills   SkillSource
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   *telemetry.Tracer

	progressMu sync.Mutex
	progress   map[string]int // job id -> last observed action count, for stuck detection
}

// WithMetrics attaches a collector set that Run reports job lifecycle
// and LLM request counts, durations, and token usage to. Passing nil
// disables instrumentation; it is also the zero-value behavior.
func (s *Scheduler) WithMetrics(m *metrics.Metrics) *Scheduler {
	s.metrics = m
	return s
}

// WithTracer attaches a tracer that Run spans each job's lifetime and
// each LLM request with. Passing nil disables tracing; it is also the
// zero-value behavior.
func (s *Scheduler) WithTracer(t *telemetry.Tracer) *Scheduler {
	s.tracer = t
	return s
}

// NewScheduler builds a Scheduler. skillSource may be nil, in which
// case no skill ever attenuates the tool set. logger may be nil.
func NewScheduler(store *Store, provider providers.LlmProvider, executor *tools.Executor, skillSource SkillSource, cfg Config, logger *slog.Logger) *Scheduler {
	if skillSource == nil {
		skillSource = NoSkills{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		provider: provider,
		executor: executor,
		skills:   skillSource,
		cfg:      cfg,
		logger:   logger,
		progress: make(map[string]int),
	}
}

// Run drives job to a terminal state. It blocks until the job
// completes, fails, or is cancelled; cancellation via ctx is cooperative
// and is also honored via jobCtx.Cancelled() at every suspension point.
func (s *Scheduler) Run(ctx context.Context, jobID uuid.UUID) error {
	job, jobCtx, ok := s.store.Get(jobID)
	if !ok {
		return fmt.Errorf("jobs: unknown job %s", jobID)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.PerJobTimeout)
	defer cancel()

	if s.tracer != nil {
		var span trace.Span
		runCtx, span = s.tracer.TraceJobRun(runCtx, jobID.String())
		defer span.End()
	}

	start := time.Now()
	job.State = models.JobRunning
	job.StartedAt = start
	if s.metrics != nil {
		s.metrics.JobsStarted.WithLabelValues().Inc()
	}

	messages := []models.ChatMessage{{Role: models.RoleUser, Content: job.Description}}

	for {
		if jobCtx.Cancelled() {
			return s.terminate(job, jobCtx, models.JobCancelled, "cancelled", start)
		}
		select {
		case <-runCtx.Done():
			reason := "timed out"
			if jobCtx.Iteration >= s.cfg.MaxIterations {
				reason = "max iterations"
			}
			return s.terminate(job, jobCtx, models.JobFailed, reason, start)
		default:
		}

		if jobCtx.Iteration >= s.cfg.MaxIterations {
			return s.terminate(job, jobCtx, models.JobFailed, "max iterations", start)
		}
		jobCtx.Iteration++

		active := s.skills.ActiveSkills(jobCtx)
		attenuated := skills.AttenuateTools(toolDefinitions(s.executor), active)

		llmCtx := runCtx
		var llmSpan trace.Span
		if s.tracer != nil {
			llmCtx, llmSpan = s.tracer.TraceLLMRequest(runCtx, s.provider.Name(), s.provider.ActiveModel())
		}
		llmStart := time.Now()
		resp, err := s.provider.CompleteWithTools(llmCtx, models.ToolCompletionRequest{
			Messages: messages,
			Tools:    attenuated.Tools,
		})
		if llmSpan != nil {
			s.tracer.RecordError(llmSpan, err)
			llmSpan.End()
		}
		s.recordLLMRequest(s.provider.ActiveModel(), err, time.Since(llmStart), resp)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return s.terminate(job, jobCtx, models.JobFailed, "timed out", start)
			}
			return s.terminate(job, jobCtx, models.JobFailed, err.Error(), start)
		}

		job.TokensUsed += uint64(resp.InputTokens) + uint64(resp.OutputTokens)
		inputPrice, outputPrice := s.provider.CostPerToken()
		job.ActualCost = job.ActualCost.
			Add(models.Cost{Micros: inputPrice.Micros * int64(resp.InputTokens)}).
			Add(models.Cost{Micros: outputPrice.Micros * int64(resp.OutputTokens)})

		if !resp.HasToolCalls() {
			job.State = models.JobCompleted
			job.CompletedAt = time.Now()
			s.recordJobTerminal(models.JobCompleted, jobCtx.Iteration, time.Since(start))
			return nil
		}

		messages = append(messages, models.ChatMessage{Role: models.RoleAssistant, ToolCalls: resp.ToolCalls, Content: resp.Content})

		for _, tc := range resp.ToolCalls {
			if jobCtx.Cancelled() {
				return s.terminate(job, jobCtx, models.JobCancelled, "cancelled", start)
			}
			result, toolErr := s.dispatch(runCtx, tc, jobCtx)
			messages = append(messages, models.ChatMessage{
				Role:        models.RoleTool,
				ToolResults: []models.ToolResult{result},
			})
			if toolErr != nil {
				var te *tools.Error
				if errors.As(toolErr, &te) && !te.Type.Transient() {
					return s.terminate(job, jobCtx, models.JobFailed, toolErr.Error(), start)
				}
			}
		}

		if s.isStuck(job.ID.String(), jobCtx) {
			job.State = models.JobStuck
			job.RepairCount++
			if s.metrics != nil {
				s.metrics.JobRepairAttempts.WithLabelValues().Inc()
			}
			if job.RepairCount > s.cfg.MaxRepairAttempts {
				return s.terminate(job, jobCtx, models.JobFailed, "stuck", start)
			}
			job.State = models.JobRunning
		}
	}
}

// dispatch invokes one tool call through the retrying executor and
// converts its outcome into the canonical tool-result message plus an
// appended Action record on the job's action log.
func (s *Scheduler) dispatch(ctx context.Context, tc models.ToolCall, jobCtx *models.JobContext) (models.ToolResult, error) {
	started := time.Now()
	output, err := s.executor.DispatchWithRetry(ctx, tools.Call{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Params:     tc.Input,
	}, jobCtx)
	duration := time.Since(started)

	if err != nil {
		reason := err.Error()
		jobCtx.RecordAction(models.NewFailureAction(tc.Name, tc.Input, reason, duration, started))
		return models.ToolResult{ToolCallID: tc.ID, Content: reason, IsError: true}, err
	}

	raw := output.Raw
	if raw == "" {
		if b, marshalErr := json.Marshal(output.Result); marshalErr == nil {
			raw = string(b)
		}
	}
	sanitized := security.SanitizeToolOutput(tc.Name, raw)
	jobCtx.RecordAction(models.NewSuccessAction(tc.Name, tc.Input, raw, sanitized.Content, duration, started))
	return models.ToolResult{ToolCallID: tc.ID, Content: sanitized.Content}, nil
}

// isStuck reports whether the job has made no action-log progress since
// the last check, the stuck-detection condition from §4.1.
func (s *Scheduler) isStuck(jobID string, jobCtx *models.JobContext) bool {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	current := jobCtx.ActionStats().Total
	last, seen := s.progress[jobID]
	s.progress[jobID] = current
	return seen && current == last
}

func (s *Scheduler) terminate(job *models.Job, jobCtx *models.JobContext, state models.JobState, reason string, start time.Time) error {
	job.State = state
	job.CompletedAt = time.Now()
	fb := models.BuildFallback(jobCtx, reason, time.Since(start).Seconds())
	jobCtx.Job.Metadata = setFallback(jobCtx.Job.Metadata, fb)
	s.recordJobTerminal(state, jobCtx.Iteration, time.Since(start))
	return fmt.Errorf("jobs: %s: %s", state, reason)
}

func (s *Scheduler) recordJobTerminal(state models.JobState, iterations int, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	label := string(state)
	s.metrics.JobsCompleted.WithLabelValues(label).Inc()
	s.metrics.JobDuration.WithLabelValues(label).Observe(duration.Seconds())
	s.metrics.JobIterations.WithLabelValues(label).Observe(float64(iterations))
}

func (s *Scheduler) recordLLMRequest(model string, err error, duration time.Duration, resp models.ToolCompletionResponse) {
	if s.metrics == nil {
		return
	}
	provider := s.provider.Name()
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.LLMRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	s.metrics.LLMRequestTotal.WithLabelValues(provider, model, status).Inc()
	if err == nil {
		s.metrics.LLMTokensTotal.WithLabelValues(provider, model, "input").Add(float64(resp.InputTokens))
		s.metrics.LLMTokensTotal.WithLabelValues(provider, model, "output").Add(float64(resp.OutputTokens))
	}
}

func setFallback(metadata map[string]any, fb models.FallbackDeliverable) map[string]any {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["fallback_deliverable"] = fb
	return metadata
}

func toolDefinitions(executor *tools.Executor) []models.ToolDefinition {
	descriptors := executor.Registry().Descriptors()
	out := make([]models.ToolDefinition, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, models.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.ParametersSchema,
		})
	}
	return out
}
