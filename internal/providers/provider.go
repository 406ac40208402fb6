// Package providers defines the LlmProvider abstraction and the
// failover wrapper that chains concrete provider legs together.
package providers

import (
	"context"

	"github.com/ironclaw/core/pkg/models"
)

// LlmProvider is the capability set every backend (Anthropic, OpenAI,
// Bedrock, ...) must expose to the job scheduler: plain completions,
// tool-aware completions, and model metadata. Implementations must be
// safe for concurrent use — the scheduler may drive many jobs through
// the same provider at once.
type LlmProvider interface {
	// Name identifies this provider leg (e.g. "anthropic", "openai").
	Name() string

	// ActiveModel reports the model this provider is currently
	// configured to use.
	ActiveModel() string

	// CostPerToken reports the provider's list price for its active
	// model, in micro-units of currency per token.
	CostPerToken() (input, output models.Cost)

	// Complete asks for a plain text completion.
	Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error)

	// CompleteWithTools asks for a completion that may request tool
	// calls from the tools offered in req.
	CompleteWithTools(ctx context.Context, req models.ToolCompletionRequest) (models.ToolCompletionResponse, error)

	// ListModels returns the models this provider can serve.
	ListModels() []ModelInfo

	// ModelMetadata returns static capability info about the active
	// model (context window, vision support, ...).
	ModelMetadata() ModelInfo
}

// ModelInfo describes one model a provider can serve.
type ModelInfo struct {
	ID             string
	ContextWindow  int
	SupportsVision bool
	SupportsTools  bool
}

// ResponseChainer is an optional capability: providers fronting an API
// with server-side message threading (e.g. the Responses API) can seed
// and recall a thread's continuation id so the caller need not resend
// the full message history on every turn.
type ResponseChainer interface {
	SeedResponseChain(threadID, responseID string)
	GetResponseChainID(threadID string) (string, bool)
}
