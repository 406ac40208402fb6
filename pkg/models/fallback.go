package models

// LastAction is the compact, sanitised-only summary of the final action
// attached to a Fallback Deliverable.
type LastAction struct {
	ToolName string `json:"tool_name"`
	Preview  string `json:"output_preview"`
	Success  bool   `json:"success"`
}

// FallbackDeliverable is the structured post-mortem attached to any job
// that terminates in a state other than Completed. It is built
// unconditionally on every non-Completed terminal transition.
type FallbackDeliverable struct {
	Partial        bool         `json:"partial"`
	FailureReason  string       `json:"failure_reason"`
	LastAction     *LastAction  `json:"last_action"`
	ActionStats    ActionStats  `json:"action_stats"`
	TokensUsed     uint64       `json:"tokens_used"`
	Cost           Cost         `json:"cost"`
	ElapsedSecs    float64      `json:"elapsed_secs"`
	RepairAttempts uint32       `json:"repair_attempts"`
}

const (
	maxFailureReasonBytes = 1000
	maxPreviewBytes       = 200
)

// BuildFallback assembles a Fallback Deliverable from a job context and a
// one-line failure reason. previews are already-sanitised text only;
// BuildFallback never touches raw tool output.
func BuildFallback(ctx *JobContext, failureReason string, elapsed float64) FallbackDeliverable {
	stats := ctx.ActionStats()
	actions := ctx.Actions()

	fb := FallbackDeliverable{
		Partial:        stats.Successful > 0,
		FailureReason:  truncateRunes(failureReason, maxFailureReasonBytes),
		ActionStats:    stats,
		TokensUsed:     ctx.Job.TokensUsed,
		Cost:           ctx.Job.ActualCost,
		ElapsedSecs:    elapsed,
		RepairAttempts: ctx.Job.RepairCount,
	}

	if len(actions) > 0 {
		last := actions[len(actions)-1]
		preview := last.Outcome.SanitizedOutput
		if !last.Success() {
			preview = last.Outcome.Reason
		}
		fb.LastAction = &LastAction{
			ToolName: last.ToolName,
			Preview:  truncateRunes(preview, maxPreviewBytes),
			Success:  last.Success(),
		}
	}

	return fb
}

// truncateRunes performs rune-boundary (never naive byte) truncation, as
// required for UTF-8-safe preview/reason budgeting.
func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	runes := []rune(s)
	for len(string(runes)) > maxBytes && len(runes) > 0 {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}
