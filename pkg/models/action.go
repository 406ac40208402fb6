package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionOutcome is a sum type over the two ways a tool dispatch can end.
// Exactly one of Success/Failure fields is populated at a time; the
// IsSuccess flag disambiguates without a type switch.
type ActionOutcome struct {
	IsSuccess bool

	// Success fields.
	RawOutput       string        `json:"raw_output,omitempty"`
	SanitizedOutput string        `json:"sanitized_output,omitempty"`

	// Failure fields.
	Reason string `json:"reason,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Action is one recorded tool invocation within a job's append-only
// action log. Ordering in the log reflects wall-clock dispatch order.
type Action struct {
	ID        uuid.UUID       `json:"id"`
	ToolName  string          `json:"tool_name"`
	Input     json.RawMessage `json:"input"`
	Outcome   ActionOutcome   `json:"outcome"`
	StartedAt time.Time       `json:"started_at"`
}

// Success reports whether this action's outcome was a success.
func (a Action) Success() bool {
	return a.Outcome.IsSuccess
}

// NewSuccessAction builds an Action recording a successful dispatch.
// sanitizedOutput must be derived from rawOutput only via the safety
// layer; callers must not hand-construct a sanitized value.
func NewSuccessAction(toolName string, input json.RawMessage, rawOutput, sanitizedOutput string, duration time.Duration, startedAt time.Time) Action {
	return Action{
		ID:       uuid.New(),
		ToolName: toolName,
		Input:    input,
		Outcome: ActionOutcome{
			IsSuccess:       true,
			RawOutput:       rawOutput,
			SanitizedOutput: sanitizedOutput,
			Duration:        duration,
		},
		StartedAt: startedAt,
	}
}

// NewFailureAction builds an Action recording a failed dispatch.
func NewFailureAction(toolName string, input json.RawMessage, reason string, duration time.Duration, startedAt time.Time) Action {
	return Action{
		ID:       uuid.New(),
		ToolName: toolName,
		Input:    input,
		Outcome: ActionOutcome{
			IsSuccess: false,
			Reason:    reason,
			Duration:  duration,
		},
		StartedAt: startedAt,
	}
}

// ActionStats is the {total, successful, failed} triple surfaced in a
// Fallback Deliverable. total = successful + failed always holds.
type ActionStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
