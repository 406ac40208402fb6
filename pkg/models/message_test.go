package models

import (
	"encoding/json"
	"testing"
)

func TestRole_Constants(t *testing.T) {
	tests := []struct {
		constant Role
		expected string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleSystem, "system"},
		{RoleTool, "tool"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestToolCall_JSONRoundTrip(t *testing.T) {
	original := ToolCall{ID: "tc-1", Name: "web_search", Input: json.RawMessage(`{"query":"test"}`)}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded ToolCall
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decoded.ID != original.ID || decoded.Name != original.Name {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestToolResult_IsError(t *testing.T) {
	ok := ToolResult{ToolCallID: "tc-1", Content: "result"}
	if ok.IsError {
		t.Error("IsError should default false")
	}

	failed := ToolResult{ToolCallID: "tc-2", Content: "boom", IsError: true}
	if !failed.IsError {
		t.Error("IsError should be true")
	}
}
