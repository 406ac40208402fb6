package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ironclaw/core/internal/providers"
	"github.com/ironclaw/core/internal/tools"
	"github.com/ironclaw/core/pkg/models"
)

func newJob(t *testing.T, store *Store, description string) (*models.Job, *models.JobContext) {
	t.Helper()
	job := &models.Job{ID: uuid.New(), Description: description, State: models.JobPending, CreatedAt: time.Now()}
	ctx := store.Create(job)
	return job, ctx
}

func TestScheduler_CompletesOnTextOnlyResponse(t *testing.T) {
	store := NewStore()
	job, _ := newJob(t, store, "say hi")

	executor := tools.NewExecutor(tools.NewRegistry(), nil)
	sched := NewScheduler(store, &textOnlyProvider{}, executor, nil, DefaultConfig(), nil)

	if err := sched.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.State != models.JobCompleted {
		t.Fatalf("expected Completed, got %s", job.State)
	}
}

func TestScheduler_MaxIterationsProducesFallback(t *testing.T) {
	store := NewStore()
	job, jobCtx := newJob(t, store, "loop forever")

	registry := tools.NewRegistry()
	registry.Register(tools.NewFunc(models.ToolDescriptor{Name: "noop"}, func(ctx context.Context, params []byte, jobCtx *models.JobContext) (models.ToolOutput, error) {
		return models.ToolOutput{Result: "ok", Success: true}, nil
	}))
	executor := tools.NewExecutor(registry, nil)
	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	cfg.PerJobTimeout = time.Minute
	sched := NewScheduler(store, &alwaysToolCallProvider{}, executor, nil, cfg, nil)

	err := sched.Run(context.Background(), job.ID)
	if err == nil {
		t.Fatal("expected an error for a job that never completes")
	}
	if job.State != models.JobFailed {
		t.Fatalf("expected Failed, got %s", job.State)
	}
	fb, ok := jobCtx.Job.Metadata["fallback_deliverable"].(models.FallbackDeliverable)
	if !ok {
		t.Fatalf("expected a fallback deliverable in job metadata, got %+v", jobCtx.Job.Metadata)
	}
	if fb.FailureReason != "max iterations" {
		t.Fatalf("expected failure reason %q, got %q", "max iterations", fb.FailureReason)
	}
}

func TestScheduler_UnknownToolFailsTheJob(t *testing.T) {
	store := NewStore()
	job, _ := newJob(t, store, "call a tool")

	executor := tools.NewExecutor(tools.NewRegistry(), nil)
	sched := NewScheduler(store, &alwaysToolCallProvider{toolName: "does-not-exist"}, executor, nil, DefaultConfig(), nil)

	if err := sched.Run(context.Background(), job.ID); err == nil {
		t.Fatal("expected an error")
	}
	if job.State != models.JobFailed {
		t.Fatalf("expected Failed for an unresolvable tool, got %s", job.State)
	}
}

func TestScheduler_RunUnknownJobErrors(t *testing.T) {
	store := NewStore()
	executor := tools.NewExecutor(tools.NewRegistry(), nil)
	sched := NewScheduler(store, &textOnlyProvider{}, executor, nil, DefaultConfig(), nil)

	if err := sched.Run(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected an error for an unknown job id")
	}
}

// textOnlyProvider always returns a text-only completion, ending the
// loop on the first turn.
type textOnlyProvider struct{}

func (textOnlyProvider) Name() string        { return "text-only" }
func (textOnlyProvider) ActiveModel() string { return "stub-model" }
func (textOnlyProvider) CostPerToken() (models.Cost, models.Cost) {
	return models.Cost{}, models.Cost{}
}
func (textOnlyProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	return models.CompletionResponse{}, nil
}
func (textOnlyProvider) CompleteWithTools(ctx context.Context, req models.ToolCompletionRequest) (models.ToolCompletionResponse, error) {
	return models.ToolCompletionResponse{Content: "hello", FinishReason: models.FinishStop}, nil
}
func (textOnlyProvider) ListModels() []providers.ModelInfo { return nil }
func (textOnlyProvider) ModelMetadata() providers.ModelInfo { return providers.ModelInfo{} }

// alwaysToolCallProvider always requests the same tool call, forcing the
// loop to keep iterating until a termination condition fires.
type alwaysToolCallProvider struct {
	toolName string
}

func (p *alwaysToolCallProvider) Name() string        { return "always-tool" }
func (p *alwaysToolCallProvider) ActiveModel() string { return "stub-model" }
func (p *alwaysToolCallProvider) CostPerToken() (models.Cost, models.Cost) {
	return models.Cost{}, models.Cost{}
}
func (p *alwaysToolCallProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	return models.CompletionResponse{}, nil
}
func (p *alwaysToolCallProvider) CompleteWithTools(ctx context.Context, req models.ToolCompletionRequest) (models.ToolCompletionResponse, error) {
	name := p.toolName
	if name == "" {
		name = "noop"
	}
	return models.ToolCompletionResponse{
		ToolCalls:    []models.ToolCall{{ID: "call-1", Name: name}},
		FinishReason: models.FinishToolUse,
	}, nil
}
func (p *alwaysToolCallProvider) ListModels() []providers.ModelInfo { return nil }
func (p *alwaysToolCallProvider) ModelMetadata() providers.ModelInfo { return providers.ModelInfo{} }
