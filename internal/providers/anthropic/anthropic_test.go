package anthropic

import (
	"testing"

	"github.com/ironclaw/core/internal/providers"
)

func TestStatusToType(t *testing.T) {
	cases := []struct {
		status int
		msg    string
		want   providers.LLMErrorType
	}{
		{401, "invalid x-api-key", providers.LLMAuthFailed},
		{403, "forbidden", providers.LLMAuthFailed},
		{429, "rate limited", providers.LLMRateLimited},
		{400, "prompt is too long: context window exceeded", providers.LLMContextLengthExceeded},
		{404, "model not found", providers.LLMModelNotAvailable},
		{500, "internal error", providers.LLMRequestFailed},
		{400, "missing required field", providers.LLMRequestFailed},
	}
	for _, tc := range cases {
		if got := statusToType(tc.status, tc.msg); got != tc.want {
			t.Errorf("statusToType(%d, %q) = %s, want %s", tc.status, tc.msg, got, tc.want)
		}
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestModelMetadata_FallsBackForUnknownModel(t *testing.T) {
	p, err := New(Config{APIKey: "test-key", DefaultModel: "claude-unreleased"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	meta := p.ModelMetadata()
	if meta.ID != "claude-unreleased" {
		t.Fatalf("expected fallback metadata to report requested model, got %q", meta.ID)
	}
}
