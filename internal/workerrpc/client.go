package workerrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ironclaw/core/pkg/models"
)

// ErrMissingToken is returned when IRONCLAW_WORKER_TOKEN is unset.
var ErrMissingToken = errors.New("workerrpc: worker token not set")

// Client is the worker-side HTTP client that talks to the orchestrator's
// /worker/{job_id}/... endpoints, ported from the worker's own HTTP
// client: every call attaches the job-scoped bearer token and never
// touches provider credentials directly.
type Client struct {
	http             *http.Client
	orchestratorURL  string
	jobID            string
	token            string
}

// NewClient builds a Client with an explicit token.
func NewClient(orchestratorURL, jobID, token string) *Client {
	return &Client{
		http:            &http.Client{Timeout: 60 * time.Second},
		orchestratorURL: strings.TrimRight(orchestratorURL, "/"),
		jobID:           jobID,
		token:           token,
	}
}

// NewClientFromEnv builds a Client using IRONCLAW_WORKER_TOKEN.
func NewClientFromEnv(orchestratorURL, jobID string) (*Client, error) {
	token := os.Getenv("IRONCLAW_WORKER_TOKEN")
	if token == "" {
		return nil, ErrMissingToken
	}
	return NewClient(orchestratorURL, jobID, token), nil
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s/worker/%s/%s", c.orchestratorURL, c.jobID, path)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("workerrpc: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("workerrpc: build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workerrpc: connection to orchestrator failed: %w", err)
	}
	return resp, nil
}

// GetJob fetches the job description from the orchestrator.
func (c *Client) GetJob(ctx context.Context) (JobDescription, error) {
	resp, err := c.do(ctx, http.MethodGet, "job", nil)
	if err != nil {
		return JobDescription{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JobDescription{}, orchestratorRejected(resp, "GET /job")
	}
	var desc JobDescription
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return JobDescription{}, fmt.Errorf("workerrpc: parse job description: %w", err)
	}
	return desc, nil
}

// Complete proxies a plain completion request through the orchestrator.
func (c *Client) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "llm/complete", req)
	if err != nil {
		return models.CompletionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.CompletionResponse{}, orchestratorRejected(resp, "POST /llm/complete")
	}
	var out models.CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.CompletionResponse{}, fmt.Errorf("workerrpc: parse completion response: %w", err)
	}
	return out, nil
}

// CompleteWithTools proxies a tool-aware completion request.
func (c *Client) CompleteWithTools(ctx context.Context, req models.ToolCompletionRequest) (models.ToolCompletionResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "llm/complete_with_tools", req)
	if err != nil {
		return models.ToolCompletionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ToolCompletionResponse{}, orchestratorRejected(resp, "POST /llm/complete_with_tools")
	}
	var out models.ToolCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.ToolCompletionResponse{}, fmt.Errorf("workerrpc: parse tool completion response: %w", err)
	}
	return out, nil
}

// CallTool invokes a registered tool via the orchestrator's executor.
func (c *Client) CallTool(ctx context.Context, toolCallID, toolName string, params json.RawMessage) (models.ToolOutput, error) {
	body := toolCallRequest{ToolCallID: toolCallID, ToolName: toolName, Params: params}
	resp, err := c.do(ctx, http.MethodPost, "tools/call", body)
	if err != nil {
		return models.ToolOutput{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ToolOutput{}, orchestratorRejected(resp, "POST /tools/call")
	}
	var out models.ToolOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.ToolOutput{}, fmt.Errorf("workerrpc: parse tool output: %w", err)
	}
	return out, nil
}

// ReportStatus sends a progress update. Failures are logged by the
// caller, not returned as fatal — a dropped status ping shouldn't kill
// the worker's run.
func (c *Client) ReportStatus(ctx context.Context, update StatusUpdate) error {
	resp, err := c.do(ctx, http.MethodPost, "status", update)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// ReportCompletion signals job completion to the orchestrator.
func (c *Client) ReportCompletion(ctx context.Context, report CompletionReport) error {
	resp, err := c.do(ctx, http.MethodPost, "complete", report)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return orchestratorRejected(resp, "completion report rejected")
	}
	return nil
}

func orchestratorRejected(resp *http.Response, context string) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("workerrpc: %s returned %d: %s", context, resp.StatusCode, strings.TrimSpace(string(body)))
}
