package models

import "encoding/json"

// FinishReason classifies why a provider stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolUse       FinishReason = "tool_use"
	FinishContentFilter FinishReason = "content_filter"
	FinishUnknown       FinishReason = "unknown"
)

// ParseFinishReason maps a wire-level string onto the FinishReason enum,
// defaulting to FinishUnknown for anything unrecognised.
func ParseFinishReason(s string) FinishReason {
	switch s {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "tool_use", "tool_calls":
		return FinishToolUse
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishUnknown
	}
}

// ChatMessage is one turn in the accumulated message log sent to a
// provider. Role is RoleUser/RoleAssistant/RoleSystem/RoleTool (see
// message.go); ToolCalls/ToolResults carry the canonical protocol
// ordering invariant: an assistant message with ToolCalls must precede
// the tool-result messages that answer it.
type ChatMessage struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// CompletionRequest asks a provider for a plain text completion.
type CompletionRequest struct {
	Messages       []ChatMessage `json:"messages"`
	MaxTokens      *int          `json:"max_tokens,omitempty"`
	Temperature    *float32      `json:"temperature,omitempty"`
	StopSequences  []string      `json:"stop_sequences,omitempty"`
}

// CompletionResponse is a plain text completion result.
type CompletionResponse struct {
	Content      string       `json:"content"`
	InputTokens  uint32       `json:"input_tokens"`
	OutputTokens uint32       `json:"output_tokens"`
	FinishReason FinishReason `json:"finish_reason"`
	ResponseID   string       `json:"response_id,omitempty"`
}

// ToolDefinition is the wire shape of a tool offered to a provider —
// the post-attenuation view the model is allowed to see.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCompletionRequest asks a provider for a completion that may invoke
// tools from the attenuated tool set.
type ToolCompletionRequest struct {
	Messages    []ChatMessage    `json:"messages"`
	Tools       []ToolDefinition `json:"tools"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
}

// ToolCompletionResponse is a completion result that may request tool
// calls in addition to (or instead of) text content.
type ToolCompletionResponse struct {
	Content      string       `json:"content,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	InputTokens  uint32       `json:"input_tokens"`
	OutputTokens uint32       `json:"output_tokens"`
	FinishReason FinishReason `json:"finish_reason"`
	ResponseID   string       `json:"response_id,omitempty"`
}

// HasToolCalls reports whether the model requested any tool calls —
// the scheduler's loop-continuation condition in the job scheduler.
func (r ToolCompletionResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}
