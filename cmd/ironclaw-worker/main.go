// Package main provides the CLI entry point for the ironclaw worker:
// the process that runs inside a sandboxed container, holds no
// provider credentials of its own, and drives a job's iteration loop
// entirely through the orchestrator's /worker/{job_id}/... RPC surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironclaw/core/internal/tools"
	"github.com/ironclaw/core/internal/workerrpc"
	"github.com/ironclaw/core/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ironclaw-worker",
		Short:        "ironclaw worker: runs a single delegated job against the orchestrator's RPC surface",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd())
	return root
}

func buildRunCmd() *cobra.Command {
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch this container's job and drive it to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), maxIterations)
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 20, "LLM/tool round trips before giving up")
	return cmd
}

// runJob reads IRONCLAW_ORCHESTRATOR_URL/IRONCLAW_JOB_ID/IRONCLAW_WORKER_TOKEN
// from the environment the container job manager injected, then drives
// the job's iteration loop the same way the orchestrator's own scheduler
// does, except every LLM call and tool dispatch is proxied over RPC
// instead of hitting a provider or local registry directly.
func runJob(ctx context.Context, maxIterations int) error {
	orchestratorURL := os.Getenv("IRONCLAW_ORCHESTRATOR_URL")
	jobID := os.Getenv("IRONCLAW_JOB_ID")
	if orchestratorURL == "" || jobID == "" {
		return errors.New("ironclaw-worker: IRONCLAW_ORCHESTRATOR_URL and IRONCLAW_JOB_ID must be set")
	}

	client, err := workerrpc.NewClientFromEnv(orchestratorURL, jobID)
	if err != nil {
		return fmt.Errorf("ironclaw-worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	desc, err := client.GetJob(ctx)
	if err != nil {
		return fmt.Errorf("ironclaw-worker: fetch job: %w", err)
	}
	slog.Info("job fetched", "job_id", jobID, "title", desc.Title)

	// The registry is empty until deployment-specific tools are
	// registered into the worker image; an empty Tools list is a valid
	// ToolCompletionRequest, it just limits the model to plain text.
	registry := tools.NewRegistry()
	toolDefs := workerToolDefinitions(registry)

	messages := []models.ChatMessage{{Role: models.RoleUser, Content: desc.Description}}

	for iteration := 1; iteration <= maxIterations; iteration++ {
		if err := client.ReportStatus(ctx, workerrpc.StatusUpdate{
			State:     "running",
			Iteration: uint32(iteration),
		}); err != nil {
			slog.Warn("status report failed", "error", err)
		}

		resp, err := client.CompleteWithTools(ctx, models.ToolCompletionRequest{
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return reportAndReturn(ctx, client, uint32(iteration), fmt.Errorf("ironclaw-worker: completion: %w", err))
		}

		if !resp.HasToolCalls() {
			return client.ReportCompletion(ctx, workerrpc.CompletionReport{
				Success:    true,
				Message:    resp.Content,
				Iterations: uint32(iteration),
			})
		}

		messages = append(messages, models.ChatMessage{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			result := dispatchRemote(ctx, client, tc)
			messages = append(messages, models.ChatMessage{
				Role:        models.RoleTool,
				ToolResults: []models.ToolResult{result},
			})
		}
	}

	return reportAndReturn(ctx, client, uint32(maxIterations), errors.New("ironclaw-worker: max iterations reached"))
}

// dispatchRemote invokes a tool call through the orchestrator's
// executor rather than any local implementation, converting a
// transport failure into an error tool result rather than aborting the
// whole job — matching the scheduler's permanent/transient handling,
// which only the orchestrator side can classify.
func dispatchRemote(ctx context.Context, client *workerrpc.Client, tc models.ToolCall) models.ToolResult {
	callCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	output, err := client.CallTool(callCtx, tc.ID, tc.Name, tc.Input)
	if err != nil {
		return models.ToolResult{ToolCallID: tc.ID, Content: err.Error(), IsError: true}
	}
	if !output.Success {
		return models.ToolResult{ToolCallID: tc.ID, Content: output.Raw, IsError: true}
	}
	raw := output.Raw
	if raw == "" {
		if b, marshalErr := json.Marshal(output.Result); marshalErr == nil {
			raw = string(b)
		}
	}
	return models.ToolResult{ToolCallID: tc.ID, Content: raw}
}

func reportAndReturn(ctx context.Context, client *workerrpc.Client, iterations uint32, cause error) error {
	if err := client.ReportCompletion(ctx, workerrpc.CompletionReport{
		Success:    false,
		Message:    cause.Error(),
		Iterations: iterations,
	}); err != nil {
		slog.Error("completion report failed", "error", err)
	}
	return cause
}

func workerToolDefinitions(registry *tools.Registry) []models.ToolDefinition {
	descriptors := registry.Descriptors()
	out := make([]models.ToolDefinition, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, models.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.ParametersSchema,
		})
	}
	return out
}
