package providers

import (
	"context"
	"errors"
	"sync"

	"github.com/ironclaw/core/internal/metrics"
	"github.com/ironclaw/core/pkg/models"
)

// ErrNoProviders is returned when a FailoverProvider is constructed
// with an empty provider list.
var ErrNoProviders = errors.New("providers: failover chain has no legs")

// ErrAllProvidersFailed is returned when every leg in the chain
// returned a retryable error.
var ErrAllProvidersFailed = errors.New("providers: all providers in the failover chain failed")

// FailoverProvider wraps an ordered, non-empty list of provider legs.
// A call tries legs in order: a retryable error moves to the next leg,
// a non-retryable error fails the whole call immediately, and running
// out of legs on a retryable failure returns the last error seen.
type FailoverProvider struct {
	mu        sync.RWMutex
	providers []LlmProvider

	chainMu sync.Mutex
	chains  map[string]string // threadID -> responseID, shared across legs

	metrics *metrics.Metrics
}

// WithMetrics attaches a collector set that Complete/CompleteWithTools
// report failover-chain advances to. Passing nil disables
// instrumentation; it is also the zero-value behavior.
func (f *FailoverProvider) WithMetrics(m *metrics.Metrics) *FailoverProvider {
	f.metrics = m
	return f
}

func (f *FailoverProvider) recordFailover(from, to, reason string) {
	if f.metrics == nil {
		return
	}
	f.metrics.LLMFailoverTotal.WithLabelValues(from, to, reason).Inc()
}

// NewFailoverProvider builds a failover chain. The order of providers
// is the try order.
func NewFailoverProvider(providers ...LlmProvider) (*FailoverProvider, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	cp := make([]LlmProvider, len(providers))
	copy(cp, providers)
	return &FailoverProvider{providers: cp, chains: make(map[string]string)}, nil
}

// AddProvider appends a fallback leg to the end of the chain.
func (f *FailoverProvider) AddProvider(p LlmProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers = append(f.providers, p)
}

func (f *FailoverProvider) snapshot() []LlmProvider {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cp := make([]LlmProvider, len(f.providers))
	copy(cp, f.providers)
	return cp
}

// Name reports the primary (first) provider's name, prefixed so a
// transcript can tell a failover chain apart from a bare single leg.
func (f *FailoverProvider) Name() string {
	legs := f.snapshot()
	if len(legs) == 0 {
		return "failover"
	}
	return "failover:" + legs[0].Name()
}

// ActiveModel reports the primary leg's active model.
func (f *FailoverProvider) ActiveModel() string {
	legs := f.snapshot()
	if len(legs) == 0 {
		return ""
	}
	return legs[0].ActiveModel()
}

// CostPerToken reports the primary leg's pricing.
func (f *FailoverProvider) CostPerToken() (input, output models.Cost) {
	legs := f.snapshot()
	if len(legs) == 0 {
		return models.Cost{}, models.Cost{}
	}
	return legs[0].CostPerToken()
}

// Complete tries each leg in order per the retryable/non-retryable
// classification in errors.go.
func (f *FailoverProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	legs := f.snapshot()
	var lastErr error
	for i, leg := range legs {
		resp, err := leg.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryableLLMErr(leg.Name(), err) {
			return models.CompletionResponse{}, err
		}
		if ctx.Err() != nil {
			return models.CompletionResponse{}, ctx.Err()
		}
		if i+1 < len(legs) {
			f.recordFailover(leg.Name(), legs[i+1].Name(), llmErrorReason(leg.Name(), err))
		}
	}
	if lastErr == nil {
		return models.CompletionResponse{}, ErrAllProvidersFailed
	}
	return models.CompletionResponse{}, lastErr
}

// CompleteWithTools is Complete's tool-aware counterpart.
func (f *FailoverProvider) CompleteWithTools(ctx context.Context, req models.ToolCompletionRequest) (models.ToolCompletionResponse, error) {
	legs := f.snapshot()
	var lastErr error
	for i, leg := range legs {
		resp, err := leg.CompleteWithTools(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryableLLMErr(leg.Name(), err) {
			return models.ToolCompletionResponse{}, err
		}
		if ctx.Err() != nil {
			return models.ToolCompletionResponse{}, ctx.Err()
		}
		if i+1 < len(legs) {
			f.recordFailover(leg.Name(), legs[i+1].Name(), llmErrorReason(leg.Name(), err))
		}
	}
	if lastErr == nil {
		return models.ToolCompletionResponse{}, ErrAllProvidersFailed
	}
	return models.ToolCompletionResponse{}, lastErr
}

// ListModels aggregates and deduplicates every leg's model list.
func (f *FailoverProvider) ListModels() []ModelInfo {
	legs := f.snapshot()
	seen := make(map[string]bool)
	var out []ModelInfo
	for _, leg := range legs {
		for _, m := range leg.ListModels() {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	return out
}

// ModelMetadata reports the primary leg's active model metadata.
func (f *FailoverProvider) ModelMetadata() ModelInfo {
	legs := f.snapshot()
	if len(legs) == 0 {
		return ModelInfo{}
	}
	return legs[0].ModelMetadata()
}

// SeedResponseChain records a response-chain continuation id for
// threadID, shared across every leg that implements ResponseChainer.
func (f *FailoverProvider) SeedResponseChain(threadID, responseID string) {
	f.chainMu.Lock()
	defer f.chainMu.Unlock()
	f.chains[threadID] = responseID
}

// GetResponseChainID recalls a previously seeded continuation id.
func (f *FailoverProvider) GetResponseChainID(threadID string) (string, bool) {
	f.chainMu.Lock()
	defer f.chainMu.Unlock()
	id, ok := f.chains[threadID]
	return id, ok
}

func isRetryableLLMErr(providerName string, err error) bool {
	le, ok := AsLLMError(err)
	if !ok {
		le = NewLLMError(providerName, "", err)
	}
	return le.Type.Retryable()
}

func llmErrorReason(providerName string, err error) string {
	le, ok := AsLLMError(err)
	if !ok {
		le = NewLLMError(providerName, "", err)
	}
	return string(le.Type)
}
