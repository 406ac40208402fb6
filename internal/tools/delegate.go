package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ironclaw/core/internal/sandbox"
	"github.com/ironclaw/core/pkg/models"
)

// DelegateRegistrar seeds a lightweight job record for a container
// started on behalf of an in-flight job, so the worker RPC surface has
// something to serve back when the container calls GET
// /worker/{job_id}/job. internal/jobs's Store satisfies this without
// package tools importing internal/jobs (which already imports tools).
type DelegateRegistrar interface {
	RegisterDelegatedJob(id uuid.UUID, title, description string)
}

// delegateMetadataKey is the JobContext metadata key a running
// delegation is tracked under, so a dispatch cut short by the per-tool
// hard timeout resumes polling the same container on its next retry
// instead of starting a second one.
const delegateMetadataKey = "sandbox_delegate_id"

// delegateParams is the JSON body an LLM supplies to the delegate tool:
// a task description handed to the sandboxed worker verbatim as its own
// job description.
type delegateParams struct {
	Task string `json:"task"`
}

// NewSandboxDelegate wraps a container job manager as a registrable
// tool: calling it creates a sandboxed worker (or resumes polling one
// already created by an earlier, timed-out attempt at this same call),
// waits for it to reach a terminal state, and folds the worker's own
// completion report back into this call's ToolOutput. It is the
// "delegating tool" the container job manager's own docs describe
// polling from.
//
// The per-tool dispatch ceiling (300s) is shorter than the container
// manager's own poll ceiling (10 minutes): a call that hits the
// dispatch ceiling mid-poll returns a retryable Sandbox/Timeout error
// without stopping the container, recording the in-progress record id
// on the job so the next retry resumes the same poll rather than
// creating a second container for the same task.
func NewSandboxDelegate(manager *sandbox.Manager, registrar DelegateRegistrar) *Func {
	descriptor := models.ToolDescriptor{
		Name:             "delegate_to_sandbox",
		Description:      "Run a task in an isolated container worker and return its final report.",
		Domain:           models.DomainOrchestrator,
		ExecutionTimeout: HardTimeoutCeiling,
		RetryConfig:      &models.RetryConfig{MaxRetries: 20},
	}
	return NewFunc(descriptor, func(ctx context.Context, params []byte, jobCtx *models.JobContext) (models.ToolOutput, error) {
		var p delegateParams
		if err := json.Unmarshal(params, &p); err != nil {
			return models.ToolOutput{}, NewError(descriptor.Name, ErrorInvalidParameters, err)
		}
		if p.Task == "" {
			return models.ToolOutput{}, NewError(descriptor.Name, ErrorInvalidParameters, fmt.Errorf("task is required"))
		}

		recordID, err := resumeOrCreateDelegate(ctx, manager, registrar, jobCtx, p.Task)
		if err != nil {
			return models.ToolOutput{}, NewError(descriptor.Name, ErrorSandbox, err)
		}

		final, err := manager.Poll(ctx, recordID)
		if err != nil {
			// ctx expired before the container did: leave the record
			// tracked so the next attempt resumes this same poll.
			return models.ToolOutput{}, NewError(descriptor.Name, ErrorTimeout, err)
		}

		manager.Cleanup(recordID)
		clearDelegateRecord(jobCtx)

		return models.ToolOutput{
			Result:  final,
			Success: final.State != models.SandboxFailed && final.Success,
		}, nil
	})
}

func resumeOrCreateDelegate(ctx context.Context, manager *sandbox.Manager, registrar DelegateRegistrar, jobCtx *models.JobContext, task string) (string, error) {
	if jobCtx != nil && jobCtx.Job != nil {
		if id, ok := jobCtx.Job.Metadata[delegateMetadataKey]; ok {
			if idStr, ok := id.(string); ok {
				if _, found := manager.Get(idStr); found {
					return idStr, nil
				}
			}
		}
	}

	userID := ""
	parentTitle := "delegated task"
	if jobCtx != nil && jobCtx.Job != nil {
		userID = jobCtx.Job.UserID
		parentTitle = jobCtx.Job.Title
	}

	record, err := manager.Create(ctx, task, userID)
	if err != nil {
		return "", err
	}

	if registrar != nil {
		registrar.RegisterDelegatedJob(record.ID, fmt.Sprintf("sandbox: %s", parentTitle), task)
	}

	if jobCtx != nil && jobCtx.Job != nil {
		if jobCtx.Job.Metadata == nil {
			jobCtx.Job.Metadata = make(map[string]any)
		}
		jobCtx.Job.Metadata[delegateMetadataKey] = record.ID.String()
	}

	return record.ID.String(), nil
}

func clearDelegateRecord(jobCtx *models.JobContext) {
	if jobCtx == nil || jobCtx.Job == nil || jobCtx.Job.Metadata == nil {
		return
	}
	delete(jobCtx.Job.Metadata, delegateMetadataKey)
}
