package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironclaw/core/internal/metrics"
	"github.com/ironclaw/core/internal/ratelimit"
	"github.com/ironclaw/core/internal/security"
	"github.com/ironclaw/core/internal/telemetry"
	"github.com/ironclaw/core/pkg/models"
)

// MaxNestingDepth is the hard ceiling on nested tool dispatch regardless
// of what a container worker reports for its own depth.
const MaxNestingDepth = 5

// HardTimeoutCeiling bounds every tool call's effective timeout no
// matter what the call or the tool descriptor ask for.
const HardTimeoutCeiling = 300 * time.Second

// DefaultTimeout is used when neither the call nor the descriptor name
// one.
const DefaultTimeout = 30 * time.Second

// DefaultMaxRetriesContainer and DefaultMaxRetriesOrchestrator are the
// retry wrapper's domain defaults when a tool carries no RetryConfig.
const (
	DefaultMaxRetriesContainer    = 2
	DefaultMaxRetriesOrchestrator = 5
)

const defaultBaseDelay = 200 * time.Millisecond
const defaultMaxDelay = 30 * time.Second
const jitterFraction = 0.25
const jitterFloor = 100 * time.Millisecond

// Call is one request to dispatch a named tool with raw JSON params.
type Call struct {
	ToolCallID      string
	ToolName        string
	Params          []byte
	TimeoutOverride time.Duration // zero means "no override"
}

// Executor drives the dispatch pipeline: nesting guard, resolution,
// timeout, bounded execution, error classification, output assembly,
// and sanitisation. It mirrors the agent package's bounded-execution
// pattern (goroutine + channel + recover, raced against a context
// timeout) but generalized to the tool registry and the fixed
// ErrorType taxonomy in this package.
type Executor struct {
	registry *Registry
	approval *ApprovalGate
	metrics  *metrics.Metrics
	tracer   *telemetry.Tracer

	limitersMu sync.Mutex
	limiters   map[string]*ratelimit.Bucket
}

// NewExecutor builds an Executor over registry. approval may be nil if
// no registered tool ever declares an approval requirement.
func NewExecutor(registry *Registry, approval *ApprovalGate) *Executor {
	return &Executor{
		registry: registry,
		approval: approval,
		limiters: make(map[string]*ratelimit.Bucket),
	}
}

// WithMetrics attaches a collector set that DispatchWithRetry reports
// dispatch counts, latency, and retry counts to. Passing nil disables
// instrumentation; it is also the zero-value behavior.
func (e *Executor) WithMetrics(m *metrics.Metrics) *Executor {
	e.metrics = m
	return e
}

// WithTracer attaches a tracer that DispatchWithRetry spans each
// dispatch attempt with. Passing nil disables tracing; it is also the
// zero-value behavior.
func (e *Executor) WithTracer(t *telemetry.Tracer) *Executor {
	e.tracer = t
	return e
}

// Registry exposes the executor's backing registry, so callers building
// a provider-facing tool list don't need a second reference to it.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Dispatch runs the full 7-step pipeline once, with no retry. Retry is
// layered on top by DispatchWithRetry.
func (e *Executor) Dispatch(ctx context.Context, call Call, jobCtx *models.JobContext) (models.ToolOutput, error) {
	// Step 1: nesting guard.
	if jobCtx.ToolNestingDepth >= MaxNestingDepth {
		return models.ToolOutput{}, NewError(call.ToolName, ErrorNestingDepthExceeded,
			fmt.Errorf("nesting depth %d at or above limit %d", jobCtx.ToolNestingDepth, MaxNestingDepth)).
			WithToolCallID(call.ToolCallID)
	}

	// Step 2: resolve.
	tool, ok := e.registry.Get(call.ToolName)
	if !ok {
		return models.ToolOutput{}, NewError(call.ToolName, ErrorNotFound,
			fmt.Errorf("tool %q is not registered", call.ToolName)).WithToolCallID(call.ToolCallID)
	}
	descriptor := tool.Descriptor()

	if err := validateParams(descriptor, call.Params); err != nil {
		return models.ToolOutput{}, NewError(call.ToolName, ErrorInvalidParameters, err).WithToolCallID(call.ToolCallID)
	}

	// Step 3: effective timeout = min(override, descriptor, default, ceiling).
	timeout := effectiveTimeout(call.TimeoutOverride, descriptor.ExecutionTimeout)

	if limiter := e.limiterFor(descriptor); limiter != nil && !limiter.Allow() {
		return models.ToolOutput{}, NewError(call.ToolName, ErrorRateLimited,
			fmt.Errorf("rate limit exceeded for tool %q", call.ToolName)).WithToolCallID(call.ToolCallID)
	}

	if e.approval != nil && e.approval.Requires(descriptor.ApprovalRequirement, call.ToolName, call.Params) {
		requestID := call.ToolCallID
		if requestID == "" {
			requestID = call.ToolName
		}
		e.approval.Open(requestID)
		if err := e.approval.Wait(ctx, requestID); err != nil {
			return models.ToolOutput{}, NewError(call.ToolName, ErrorNotAuthorized, err).WithToolCallID(call.ToolCallID)
		}
	}

	// Step 4: execute under timeout via the bounded-execution pattern.
	output, execErr := e.executeWithTimeout(ctx, tool, call.Params, jobCtx, timeout)

	// Step 5: classify.
	if execErr != nil {
		return models.ToolOutput{}, classifyDispatchError(call.ToolName, call.ToolCallID, execErr)
	}

	// Step 6: assemble raw output.
	raw := output.Raw
	if raw == "" {
		if output.Result != nil {
			if b, err := json.Marshal(output.Result); err == nil {
				raw = string(b)
			}
		}
	}

	// Step 7: sanitize if required.
	if descriptor.RequiresSanitization {
		result := security.SanitizeToolOutput(call.ToolName, raw)
		if isBlockedOutput(result.Content) {
			return models.ToolOutput{}, NewError(call.ToolName, ErrorSafetyBlocked,
				fmt.Errorf("tool output blocked by safety layer")).WithToolCallID(call.ToolCallID)
		}
		output.Raw = result.Content
		if result.WasModified {
			output.Result = withSanitizedFlag(output.Result, true)
		}
	}

	return output, nil
}

func isBlockedOutput(content string) bool {
	return len(content) >= len("Output blocked: ") && content[:len("Output blocked: ")] == "Output blocked: "
}

func withSanitizedFlag(result any, wasSanitized bool) any {
	switch v := result.(type) {
	case map[string]any:
		v["was_sanitized"] = wasSanitized
		return v
	default:
		return map[string]any{"result": result, "was_sanitized": wasSanitized}
	}
}

// executeWithTimeout races tool.Execute against timeout, recovering a
// panicking tool into an ExecutionFailed-classified error instead of
// crashing the caller's goroutine.
func (e *Executor) executeWithTimeout(ctx context.Context, tool Tool, params []byte, jobCtx *models.JobContext, timeout time.Duration) (models.ToolOutput, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		output models.ToolOutput
		err    error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		start := time.Now()
		out, err := tool.Execute(execCtx, params, jobCtx)
		out.DurationMs = time.Since(start).Milliseconds()
		done <- result{output: out, err: err}
	}()

	select {
	case r := <-done:
		return r.output, r.err
	case <-execCtx.Done():
		return models.ToolOutput{}, NewError("", ErrorTimeout, execCtx.Err())
	}
}

func classifyDispatchError(toolName, toolCallID string, err error) *Error {
	if te, ok := AsError(err); ok {
		if te.ToolCallID == "" {
			te.ToolCallID = toolCallID
		}
		if te.ToolName == "" {
			te.ToolName = toolName
		}
		return te
	}
	return NewError(toolName, "", err).WithToolCallID(toolCallID)
}

func effectiveTimeout(override, descriptorTimeout time.Duration) time.Duration {
	t := DefaultTimeout
	if descriptorTimeout > 0 {
		t = descriptorTimeout
	}
	if override > 0 && override < t {
		t = override
	}
	if t > HardTimeoutCeiling {
		t = HardTimeoutCeiling
	}
	return t
}

func (e *Executor) limiterFor(descriptor models.ToolDescriptor) *ratelimit.Bucket {
	if descriptor.RateLimitConfig == nil {
		return nil
	}
	e.limitersMu.Lock()
	defer e.limitersMu.Unlock()
	if b, ok := e.limiters[descriptor.Name]; ok {
		return b
	}
	b := ratelimit.NewBucket(ratelimit.Config{
		RequestsPerSecond: descriptor.RateLimitConfig.RefillRate,
		BurstSize:         int(descriptor.RateLimitConfig.Capacity),
		Enabled:           true,
	})
	e.limiters[descriptor.Name] = b
	return b
}

func validateParams(descriptor models.ToolDescriptor, params []byte) error {
	if len(descriptor.ParametersSchema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(descriptor.Name+".schema.json", bytes.NewReader(descriptor.ParametersSchema)); err != nil {
		return fmt.Errorf("compile schema for %s: %w", descriptor.Name, err)
	}
	schema, err := compiler.Compile(descriptor.Name + ".schema.json")
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", descriptor.Name, err)
	}
	var doc any
	if len(params) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(params, &doc); err != nil {
		return fmt.Errorf("parameters are not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("parameters failed schema validation: %w", err)
	}
	return nil
}

// RetryPolicy configures DispatchWithRetry. A zero MaxRetries uses the
// domain default (container: 2, orchestrator: 5).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the domain default retry policy.
func DefaultRetryPolicy(domain models.ToolDomain) RetryPolicy {
	maxRetries := DefaultMaxRetriesOrchestrator
	if domain == models.DomainContainer {
		maxRetries = DefaultMaxRetriesContainer
	}
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: defaultBaseDelay, MaxDelay: defaultMaxDelay}
}

func resolveRetryPolicy(descriptor models.ToolDescriptor) RetryPolicy {
	policy := DefaultRetryPolicy(descriptor.Domain)
	if descriptor.RetryConfig == nil {
		return policy
	}
	if descriptor.RetryConfig.MaxRetries > 0 {
		policy.MaxRetries = descriptor.RetryConfig.MaxRetries
	}
	if descriptor.RetryConfig.BaseDelay > 0 {
		policy.BaseDelay = descriptor.RetryConfig.BaseDelay
	}
	if descriptor.RetryConfig.MaxDelay > 0 {
		policy.MaxDelay = descriptor.RetryConfig.MaxDelay
	}
	return policy
}

// DispatchWithRetry wraps Dispatch's execute step with backoff-and-retry:
// permanent errors (InvalidParameters, ExecutionFailed, NotAuthorized)
// fail on the first attempt; transient errors (RateLimited,
// ExternalService, Timeout, Sandbox) retry with jittered exponential
// backoff, preferring a server-suggested delay for RateLimited, and
// abort early if the next sleep would exceed ctx's remaining deadline
// (the per-job budget this call is scoped to).
func (e *Executor) DispatchWithRetry(ctx context.Context, call Call, jobCtx *models.JobContext) (output models.ToolOutput, dispatchErr error) {
	tool, ok := e.registry.Get(call.ToolName)
	var policy RetryPolicy
	if ok {
		policy = resolveRetryPolicy(tool.Descriptor())
	} else {
		policy = DefaultRetryPolicy(models.DomainOrchestrator)
	}

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.TraceToolDispatch(ctx, call.ToolName)
		defer func() {
			e.tracer.RecordError(span, dispatchErr)
			span.End()
		}()
	}

	started := time.Now()
	var lastErr *Error
	for attempt := 1; ; attempt++ {
		output, err := e.Dispatch(ctx, call, jobCtx)
		if err == nil {
			e.recordDispatch(call.ToolName, "success", time.Since(started))
			return output, nil
		}

		te, _ := AsError(err)
		if te == nil {
			te = NewError(call.ToolName, "", err)
		}
		te = te.WithAttempts(attempt)
		lastErr = te

		if te.Type.Permanent() || !te.Type.Transient() {
			e.recordDispatch(call.ToolName, "error", time.Since(started))
			return models.ToolOutput{}, te
		}
		if attempt > policy.MaxRetries {
			e.recordDispatch(call.ToolName, "error", time.Since(started))
			return models.ToolOutput{}, te
		}

		if e.metrics != nil {
			e.metrics.ToolRetryTotal.WithLabelValues(call.ToolName).Inc()
		}

		delay := computeRetryDelay(policy, attempt, te)
		if remaining, ok := budgetRemaining(ctx); ok && delay > remaining {
			e.recordDispatch(call.ToolName, "error", time.Since(started))
			return models.ToolOutput{}, te
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.recordDispatch(call.ToolName, "error", time.Since(started))
			return models.ToolOutput{}, lastErr
		case <-timer.C:
		}
	}
}

func (e *Executor) recordDispatch(toolName, status string, duration time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.ToolExecutionTotal.WithLabelValues(toolName, status).Inc()
	e.metrics.ToolExecutionDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// budgetRemaining reports the time left before ctx's deadline, which
// stands in for the job's remaining execution budget: the executor has
// no separate budget field to consult, and ctx is already scoped to the
// job's overall allowance.
func budgetRemaining(ctx context.Context) (time.Duration, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	return time.Until(deadline), true
}

// computeRetryDelay applies exponential backoff with +/-25% uniform
// jitter floored at 100ms: min(base*2^(attempt-1), maxDelay) +/- 25%.
// A RateLimited error's server-suggested RetryAfter is preferred,
// itself capped at maxDelay.
func computeRetryDelay(policy RetryPolicy, attempt int, te *Error) time.Duration {
	if te.Type == ErrorRateLimited && te.RetryAfter != nil {
		d := time.Duration(te.RetryAfter.Milliseconds) * time.Millisecond
		if d > policy.MaxDelay {
			d = policy.MaxDelay
		}
		if d < jitterFloor {
			d = jitterFloor
		}
		return d
	}

	base := float64(policy.BaseDelay) * math.Pow(2, float64(attempt-1))
	if base > float64(policy.MaxDelay) {
		base = float64(policy.MaxDelay)
	}

	jitterRange := base * jitterFraction
	jitter := (rand.Float64()*2 - 1) * jitterRange // #nosec G404 -- jitter does not require cryptographic randomness
	delay := time.Duration(base + jitter)
	if delay < jitterFloor {
		delay = jitterFloor
	}
	return delay
}
