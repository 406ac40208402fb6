// Package bedrock implements the providers.LlmProvider interface over
// the AWS Bedrock Converse API. discovery.go (model catalog lookup) is
// the teacher's own file, kept and reused by ListModels/ModelMetadata
// below.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/ironclaw/core/internal/providers"
	"github.com/ironclaw/core/pkg/models"
)

// DefaultModel is used when a request and the provider's config both
// leave the model unspecified.
const DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"

var fallbackCatalog = []providers.ModelInfo{
	{ID: "anthropic.claude-3-opus-20240229-v1:0", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
	{ID: "anthropic.claude-3-sonnet-20240229-v1:0", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
	{ID: "anthropic.claude-3-haiku-20240307-v1:0", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
	{ID: "meta.llama3-70b-instruct-v1:0", ContextWindow: 8192, SupportsTools: false},
	{ID: "cohere.command-r-plus-v1:0", ContextWindow: 128000, SupportsTools: false},
}

// Config configures a Provider.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	InputCost       models.Cost
	OutputCost      models.Cost
}

// Provider wraps the Bedrock Converse API as a providers.LlmProvider
// leg — the third failover chain member, exercising the AWS SDK's
// distinct smithy-typed error shape that the LLMErrorType classifier
// must also understand.
type Provider struct {
	client       *bedrockruntime.Client
	defaultModel string
	inputCost    models.Cost
	outputCost   models.Cost
}

// New builds a Provider from explicit or ambient AWS credentials.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	model := cfg.DefaultModel
	if model == "" {
		model = DefaultModel
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &Provider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: model,
		inputCost:    cfg.InputCost,
		outputCost:   cfg.OutputCost,
	}, nil
}

func (p *Provider) Name() string        { return "bedrock" }
func (p *Provider) ActiveModel() string { return p.defaultModel }

func (p *Provider) CostPerToken() (input, output models.Cost) {
	return p.inputCost, p.outputCost
}

func (p *Provider) ListModels() []providers.ModelInfo { return fallbackCatalog }

func (p *Provider) ModelMetadata() providers.ModelInfo {
	for _, m := range fallbackCatalog {
		if m.ID == p.defaultModel {
			return m
		}
	}
	return providers.ModelInfo{ID: p.defaultModel, ContextWindow: 200000, SupportsTools: true}
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	input, err := p.buildInput(req.Messages, nil, req.MaxTokens)
	if err != nil {
		return models.CompletionResponse{}, err
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return models.CompletionResponse{}, p.classify(err)
	}
	return toCompletionResponse(out), nil
}

func (p *Provider) CompleteWithTools(ctx context.Context, req models.ToolCompletionRequest) (models.ToolCompletionResponse, error) {
	input, err := p.buildInput(req.Messages, req.Tools, req.MaxTokens)
	if err != nil {
		return models.ToolCompletionResponse{}, err
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return models.ToolCompletionResponse{}, p.classify(err)
	}
	return toToolCompletionResponse(out), nil
}

func (p *Provider) buildInput(messages []models.ChatMessage, tools []models.ToolDefinition, maxTokens *int) (*bedrockruntime.ConverseInput, error) {
	msgs, system, err := convertMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("bedrock: convert messages: %w", err)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(p.defaultModel),
		Messages: msgs,
	}
	if system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if maxTokens != nil && *maxTokens > 0 {
		input.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(*maxTokens))}
	}
	if len(tools) > 0 {
		toolCfg, err := convertTools(tools)
		if err != nil {
			return nil, fmt.Errorf("bedrock: convert tools: %w", err)
		}
		input.ToolConfig = toolCfg
	}
	return input, nil
}

func convertMessages(messages []models.ChatMessage) ([]types.Message, string, error) {
	var system string
	var out []types.Message

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += msg.Content
			continue
		}

		var content []types.ContentBlock
		if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}
		for _, tr := range msg.ToolResults {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
				},
			})
		}
		for _, tc := range msg.ToolCalls {
			var inputDoc any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &inputDoc); err != nil {
					return nil, "", fmt.Errorf("invalid tool call input for %s: %w", tc.Name, err)
				}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(inputDoc),
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out, system, nil
}

func convertTools(tools []models.ToolDefinition) (*types.ToolConfiguration, error) {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var schema any
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", t.Name, err)
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}, nil
}

func toCompletionResponse(out *bedrockruntime.ConverseOutput) models.CompletionResponse {
	resp := models.CompletionResponse{FinishReason: models.ParseFinishReason(string(out.StopReason))}
	if out.Usage != nil {
		resp.InputTokens = uint32(aws.ToInt32(out.Usage.InputTokens))
		resp.OutputTokens = uint32(aws.ToInt32(out.Usage.OutputTokens))
	}
	if msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msgOut.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				resp.Content += textBlock.Value
			}
		}
	}
	return resp
}

func toToolCompletionResponse(out *bedrockruntime.ConverseOutput) models.ToolCompletionResponse {
	resp := models.ToolCompletionResponse{FinishReason: models.ParseFinishReason(string(out.StopReason))}
	if out.Usage != nil {
		resp.InputTokens = uint32(aws.ToInt32(out.Usage.InputTokens))
		resp.OutputTokens = uint32(aws.ToInt32(out.Usage.OutputTokens))
	}
	msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return resp
	}
	for _, block := range msgOut.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			resp.Content += b.Value
		case *types.ContentBlockMemberToolUse:
			inputBytes, _ := json.Marshal(b.Value.Input)
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:    aws.ToString(b.Value.ToolUseId),
				Name:  aws.ToString(b.Value.Name),
				Input: inputBytes,
			})
		}
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = models.FinishToolUse
	}
	return resp
}

// classify maps a Bedrock SDK error onto the spec's fixed LLMErrorType
// taxonomy, preferring the smithy-go typed API error (ErrorCode) over
// string matching — the AWS SDK's own distinct error shape that the
// failover chain's classifier must accommodate alongside Anthropic's
// and OpenAI's.
func (p *Provider) classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return providers.NewLLMError(p.Name(), codeToType(apiErr.ErrorCode()), err)
	}
	return providers.NewLLMError(p.Name(), "", err)
}

func codeToType(code string) providers.LLMErrorType {
	switch code {
	case "AccessDeniedException", "UnauthorizedException":
		return providers.LLMAuthFailed
	case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
		return providers.LLMRateLimited
	case "ModelNotReadyException", "ResourceNotFoundException":
		return providers.LLMModelNotAvailable
	case "ValidationException":
		if strings.Contains(strings.ToLower(code), "context") {
			return providers.LLMContextLengthExceeded
		}
		return providers.LLMInvalidResponse
	case "ModelTimeoutException", "ServiceUnavailableException", "InternalServerException":
		return providers.LLMRequestFailed
	default:
		return providers.LLMRequestFailed
	}
}
