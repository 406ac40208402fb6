// Package anthropic implements the providers.LlmProvider interface over
// the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ironclaw/core/internal/providers"
	"github.com/ironclaw/core/pkg/models"
)

// DefaultModel is used when a request and the provider's config both
// leave the model unspecified.
const DefaultModel = "claude-sonnet-4-20250514"

const defaultMaxTokens = 4096

var catalog = []providers.ModelInfo{
	{ID: "claude-sonnet-4-20250514", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
	{ID: "claude-opus-4-20250514", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
	{ID: "claude-3-5-sonnet-20241022", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
	{ID: "claude-3-haiku-20240307", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
}

// Config configures a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	InputCost    models.Cost // per-token price, micro-units
	OutputCost   models.Cost
}

// Provider wraps an Anthropic SDK client as a providers.LlmProvider
// leg, ported from the streaming AnthropicProvider's message/tool
// conversion to a single non-streaming Messages.New call — the failover
// wrapper operates on a complete response, not a token stream.
type Provider struct {
	client       anthropicsdk.Client
	defaultModel string
	inputCost    models.Cost
	outputCost   models.Cost
}

// New builds a Provider. APIKey is required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:       anthropicsdk.NewClient(opts...),
		defaultModel: model,
		inputCost:    cfg.InputCost,
		outputCost:   cfg.OutputCost,
	}, nil
}

func (p *Provider) Name() string        { return "anthropic" }
func (p *Provider) ActiveModel() string { return p.defaultModel }

func (p *Provider) CostPerToken() (input, output models.Cost) {
	return p.inputCost, p.outputCost
}

func (p *Provider) ListModels() []providers.ModelInfo { return catalog }

func (p *Provider) ModelMetadata() providers.ModelInfo {
	for _, m := range catalog {
		if m.ID == p.defaultModel {
			return m
		}
	}
	return providers.ModelInfo{ID: p.defaultModel, ContextWindow: 200000, SupportsVision: true, SupportsTools: true}
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	params, err := p.buildParams(req.Messages, nil, req.MaxTokens, req.Temperature, "")
	if err != nil {
		return models.CompletionResponse{}, err
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return models.CompletionResponse{}, p.classify(err)
	}
	return p.toCompletionResponse(msg), nil
}

func (p *Provider) CompleteWithTools(ctx context.Context, req models.ToolCompletionRequest) (models.ToolCompletionResponse, error) {
	params, err := p.buildParams(req.Messages, req.Tools, req.MaxTokens, req.Temperature, req.ToolChoice)
	if err != nil {
		return models.ToolCompletionResponse{}, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return models.ToolCompletionResponse{}, p.classify(err)
	}
	return p.toToolCompletionResponse(msg), nil
}

func (p *Provider) buildParams(messages []models.ChatMessage, tools []models.ToolDefinition, maxTokens *int, temperature *float32, toolChoice string) (anthropicsdk.MessageNewParams, error) {
	msgs, system, err := convertMessages(messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	mt := defaultMaxTokens
	if maxTokens != nil && *maxTokens > 0 {
		mt = *maxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.defaultModel),
		Messages:  msgs,
		MaxTokens: int64(mt),
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Type: "text", Text: system}}
	}
	if temperature != nil {
		params.Temperature = anthropicsdk.Float(float64(*temperature))
	}
	if len(tools) > 0 {
		toolParams, err := convertTools(tools)
		if err != nil {
			return anthropicsdk.MessageNewParams{}, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = toolParams
	}
	return params, nil
}

func convertMessages(messages []models.ChatMessage) ([]anthropicsdk.MessageParam, string, error) {
	var system string
	var out []anthropicsdk.MessageParam

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += msg.Content
			continue
		}

		var content []anthropicsdk.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropicsdk.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropicsdk.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					return nil, "", fmt.Errorf("invalid tool call input for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropicsdk.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			out = append(out, anthropicsdk.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropicsdk.NewUserMessage(content...))
		}
	}
	return out, system, nil
}

func convertTools(tools []models.ToolDefinition) ([]anthropicsdk.ToolUnionParam, error) {
	out := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropicsdk.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", t.Name, err)
		}
		toolParam := anthropicsdk.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropicsdk.String(t.Description)
		}
		out = append(out, toolParam)
	}
	return out, nil
}

func (p *Provider) toCompletionResponse(msg *anthropicsdk.Message) models.CompletionResponse {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return models.CompletionResponse{
		Content:      text.String(),
		InputTokens:  uint32(msg.Usage.InputTokens),
		OutputTokens: uint32(msg.Usage.OutputTokens),
		FinishReason: models.ParseFinishReason(string(msg.StopReason)),
		ResponseID:   msg.ID,
	}
}

func (p *Provider) toToolCompletionResponse(msg *anthropicsdk.Message) models.ToolCompletionResponse {
	var text strings.Builder
	var calls []models.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			input, _ := json.Marshal(block.Input)
			calls = append(calls, models.ToolCall{ID: block.ID, Name: block.Name, Input: input})
		}
	}
	return models.ToolCompletionResponse{
		Content:      text.String(),
		ToolCalls:    calls,
		InputTokens:  uint32(msg.Usage.InputTokens),
		OutputTokens: uint32(msg.Usage.OutputTokens),
		FinishReason: models.ParseFinishReason(string(msg.StopReason)),
		ResponseID:   msg.ID,
	}
}

// classify maps an Anthropic SDK error onto the spec's fixed LLMErrorType
// taxonomy, preferring the SDK's typed *anthropicsdk.Error (status code +
// raw JSON body) over string matching.
func (p *Provider) classify(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return providers.NewLLMError(p.Name(), statusToType(apiErr.StatusCode, apiErr.Error()), err)
	}
	return providers.NewLLMError(p.Name(), "", err)
}

func statusToType(status int, msg string) providers.LLMErrorType {
	lower := strings.ToLower(msg)
	switch {
	case status == 401 || status == 403:
		return providers.LLMAuthFailed
	case status == 429:
		return providers.LLMRateLimited
	case status == 400 && strings.Contains(lower, "context"):
		return providers.LLMContextLengthExceeded
	case status == 404 && strings.Contains(lower, "model"):
		return providers.LLMModelNotAvailable
	case status >= 500:
		return providers.LLMRequestFailed
	default:
		return providers.LLMRequestFailed
	}
}
