package providers

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/ironclaw/core/pkg/models"
)

type stubProvider struct {
	name      string
	err       error
	callCount atomic.Int32
}

func (p *stubProvider) Name() string        { return p.name }
func (p *stubProvider) ActiveModel() string { return "stub-model" }
func (p *stubProvider) CostPerToken() (models.Cost, models.Cost) {
	return models.Cost{}, models.Cost{}
}

func (p *stubProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	p.callCount.Add(1)
	if p.err != nil {
		return models.CompletionResponse{}, p.err
	}
	return models.CompletionResponse{Content: "ok from " + p.name, FinishReason: models.FinishStop}, nil
}

func (p *stubProvider) CompleteWithTools(ctx context.Context, req models.ToolCompletionRequest) (models.ToolCompletionResponse, error) {
	p.callCount.Add(1)
	if p.err != nil {
		return models.ToolCompletionResponse{}, p.err
	}
	return models.ToolCompletionResponse{Content: "ok from " + p.name, FinishReason: models.FinishStop}, nil
}

func (p *stubProvider) ListModels() []ModelInfo    { return []ModelInfo{{ID: p.name + "-model"}} }
func (p *stubProvider) ModelMetadata() ModelInfo    { return ModelInfo{ID: p.name + "-model"} }

func TestFailoverProvider_PrimarySucceeds(t *testing.T) {
	primary := &stubProvider{name: "primary"}
	secondary := &stubProvider{name: "secondary"}

	fp, err := NewFailoverProvider(primary, secondary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := fp.Complete(context.Background(), models.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok from primary" {
		t.Fatalf("expected primary's response, got %q", resp.Content)
	}
	if secondary.callCount.Load() != 0 {
		t.Fatal("secondary should not be called when primary succeeds")
	}
}

func TestFailoverProvider_RetryableErrorFallsThrough(t *testing.T) {
	primary := &stubProvider{name: "primary", err: NewLLMError("primary", LLMRateLimited, nil)}
	secondary := &stubProvider{name: "secondary"}

	fp, err := NewFailoverProvider(primary, secondary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := fp.Complete(context.Background(), models.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok from secondary" {
		t.Fatalf("expected failover to secondary, got %q", resp.Content)
	}
	if primary.callCount.Load() != 1 {
		t.Fatalf("expected primary tried once, got %d", primary.callCount.Load())
	}
}

func TestFailoverProvider_NonRetryableErrorFailsImmediately(t *testing.T) {
	primary := &stubProvider{name: "primary", err: NewLLMError("primary", LLMAuthFailed, nil)}
	secondary := &stubProvider{name: "secondary"}

	fp, err := NewFailoverProvider(primary, secondary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = fp.Complete(context.Background(), models.CompletionRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if secondary.callCount.Load() != 0 {
		t.Fatal("secondary should not be tried after a non-retryable error")
	}
}

func TestFailoverProvider_AllLegsFailReturnsLastError(t *testing.T) {
	primary := &stubProvider{name: "primary", err: NewLLMError("primary", LLMRequestFailed, nil)}
	secondary := &stubProvider{name: "secondary", err: NewLLMError("secondary", LLMRequestFailed, nil)}

	fp, err := NewFailoverProvider(primary, secondary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = fp.Complete(context.Background(), models.CompletionRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	le, ok := AsLLMError(err)
	if !ok || le.Provider != "secondary" {
		t.Fatalf("expected last provider's error, got %v", err)
	}
}

func TestFailoverProvider_EmptyChainRejected(t *testing.T) {
	if _, err := NewFailoverProvider(); err != ErrNoProviders {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}

func TestFailoverProvider_ListModelsDedups(t *testing.T) {
	a := &stubProvider{name: "a"}
	b := &stubProvider{name: "a"} // same ListModels entry id as a
	b.name = "a"

	fp, _ := NewFailoverProvider(a, b)
	list := fp.ListModels()
	if len(list) != 1 {
		t.Fatalf("expected deduplicated model list of 1, got %d", len(list))
	}
}

func TestLLMErrorType_RetryableClassification(t *testing.T) {
	nonRetryable := []LLMErrorType{LLMAuthFailed, LLMSessionExpired, LLMContextLengthExceeded}
	for _, tp := range nonRetryable {
		if tp.Retryable() {
			t.Errorf("%s should not be retryable", tp)
		}
	}

	retryable := []LLMErrorType{LLMRequestFailed, LLMRateLimited, LLMInvalidResponse, LLMSessionRenewalFailed, LLMModelNotAvailable}
	for _, tp := range retryable {
		if !tp.Retryable() {
			t.Errorf("%s should be retryable", tp)
		}
	}
}
