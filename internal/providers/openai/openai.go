// Package openai implements the providers.LlmProvider interface over
// the OpenAI chat completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/ironclaw/core/internal/providers"
	"github.com/ironclaw/core/pkg/models"
)

// DefaultModel is used when a request and the provider's config both
// leave the model unspecified.
const DefaultModel = "gpt-4o"

var catalog = []providers.ModelInfo{
	{ID: "gpt-4o", ContextWindow: 128000, SupportsVision: true, SupportsTools: true},
	{ID: "gpt-4-turbo", ContextWindow: 128000, SupportsVision: true, SupportsTools: true},
	{ID: "gpt-4", ContextWindow: 8192, SupportsVision: false, SupportsTools: true},
	{ID: "gpt-3.5-turbo", ContextWindow: 16385, SupportsVision: false, SupportsTools: true},
}

// Config configures a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	InputCost    models.Cost
	OutputCost   models.Cost
}

// Provider wraps a go-openai client as a providers.LlmProvider leg.
type Provider struct {
	client       *openaisdk.Client
	defaultModel string
	inputCost    models.Cost
	outputCost   models.Cost
}

// New builds a Provider. APIKey is required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = DefaultModel
	}

	clientCfg := openaisdk.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:       openaisdk.NewClientWithConfig(clientCfg),
		defaultModel: model,
		inputCost:    cfg.InputCost,
		outputCost:   cfg.OutputCost,
	}, nil
}

func (p *Provider) Name() string        { return "openai" }
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
	return providers.ModelInfo{ID: p.defaultModel, ContextWindow: 128000, SupportsTools: true}
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	chatReq := p.buildRequest(req.Messages, nil, req.MaxTokens, req.Temperature, "")
	chatReq.Stop = req.StopSequences

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.CompletionResponse{}, p.classify(err)
	}
	return toCompletionResponse(resp), nil
}

func (p *Provider) CompleteWithTools(ctx context.Context, req models.ToolCompletionRequest) (models.ToolCompletionResponse, error) {
	chatReq := p.buildRequest(req.Messages, req.Tools, req.MaxTokens, req.Temperature, req.ToolChoice)

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.ToolCompletionResponse{}, p.classify(err)
	}
	return toToolCompletionResponse(resp), nil
}

func (p *Provider) buildRequest(messages []models.ChatMessage, tools []models.ToolDefinition, maxTokens *int, temperature *float32, toolChoice string) openaisdk.ChatCompletionRequest {
	chatReq := openaisdk.ChatCompletionRequest{
		Model:    p.defaultModel,
		Messages: convertMessages(messages),
	}
	if maxTokens != nil && *maxTokens > 0 {
		chatReq.MaxTokens = *maxTokens
	}
	if temperature != nil {
		chatReq.Temperature = *temperature
	}
	if len(tools) > 0 {
		chatReq.Tools = convertTools(tools)
	}
	if toolChoice != "" {
		chatReq.ToolChoice = toolChoice
	}
	return chatReq
}

func convertMessages(messages []models.ChatMessage) []openaisdk.ChatCompletionMessage {
	var out []openaisdk.ChatCompletionMessage
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleTool:
			for _, tr := range msg.ToolResults {
				out = append(out, openaisdk.ChatCompletionMessage{
					Role:       openaisdk.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case models.RoleAssistant:
			m := openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleAssistant, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openaisdk.ToolCall{
					ID:       tc.ID,
					Type:     openaisdk.ToolTypeFunction,
					Function: openaisdk.FunctionCall{Name: tc.Name, Arguments: string(tc.Input)},
				})
			}
			out = append(out, m)
		default:
			role := openaisdk.ChatMessageRoleUser
			if msg.Role == models.RoleSystem {
				role = openaisdk.ChatMessageRoleSystem
			}
			out = append(out, openaisdk.ChatCompletionMessage{Role: role, Content: msg.Content})
		}
	}
	return out
}

func convertTools(tools []models.ToolDefinition) []openaisdk.Tool {
	out := make([]openaisdk.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

func toCompletionResponse(resp openaisdk.ChatCompletionResponse) models.CompletionResponse {
	content := ""
	finish := models.FinishUnknown
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finish = models.ParseFinishReason(string(resp.Choices[0].FinishReason))
	}
	return models.CompletionResponse{
		Content:      content,
		InputTokens:  uint32(resp.Usage.PromptTokens),
		OutputTokens: uint32(resp.Usage.CompletionTokens),
		FinishReason: finish,
		ResponseID:   resp.ID,
	}
}

func toToolCompletionResponse(resp openaisdk.ChatCompletionResponse) models.ToolCompletionResponse {
	if len(resp.Choices) == 0 {
		return models.ToolCompletionResponse{FinishReason: models.FinishUnknown}
	}
	choice := resp.Choices[0]
	var calls []models.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, models.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: json.RawMessage(tc.Function.Arguments)})
	}
	finish := models.ParseFinishReason(string(choice.FinishReason))
	if len(calls) > 0 && choice.FinishReason == "tool_calls" {
		finish = models.FinishToolUse
	}
	return models.ToolCompletionResponse{
		Content:      choice.Message.Content,
		ToolCalls:    calls,
		InputTokens:  uint32(resp.Usage.PromptTokens),
		OutputTokens: uint32(resp.Usage.CompletionTokens),
		FinishReason: finish,
		ResponseID:   resp.ID,
	}
}

// classify maps a go-openai error onto the spec's fixed LLMErrorType
// taxonomy, preferring the SDK's typed *openaisdk.APIError (HTTP status
// code) over string matching.
func (p *Provider) classify(err error) error {
	var apiErr *openaisdk.APIError
	if errors.As(err, &apiErr) {
		return providers.NewLLMError(p.Name(), statusToType(apiErr.HTTPStatusCode, apiErr.Code), err)
	}
	return providers.NewLLMError(p.Name(), "", err)
}

func statusToType(status int, code any) providers.LLMErrorType {
	codeStr := ""
	switch v := code.(type) {
	case string:
		codeStr = strings.ToLower(v)
	case int:
		codeStr = strconv.Itoa(v)
	}
	switch {
	case status == 401 || status == 403:
		return providers.LLMAuthFailed
	case status == 429:
		return providers.LLMRateLimited
	case status == 400 && strings.Contains(codeStr, "context_length"):
		return providers.LLMContextLengthExceeded
	case status == 404:
		return providers.LLMModelNotAvailable
	case status >= 500:
		return providers.LLMRequestFailed
	default:
		return providers.LLMRequestFailed
	}
}
