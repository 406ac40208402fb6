package models

import (
	"time"

	"github.com/google/uuid"
)

// SandboxJobState mirrors the Job state machine but for a container
// execution that a Job has delegated to a sandboxed worker.
type SandboxJobState string

const (
	SandboxCreating SandboxJobState = "creating"
	SandboxRunning  SandboxJobState = "running"
	SandboxStopped  SandboxJobState = "stopped"
	SandboxFailed   SandboxJobState = "failed"
)

// SandboxJobRecord represents one container execution. Its ID is reused
// as the job id, the persistence key, and the bind-mount directory name
// under the sandbox project root — all three are the same UUID by
// construction, never assigned independently.
type SandboxJobRecord struct {
	ID             uuid.UUID
	Task           string
	State          SandboxJobState
	UserID         string
	ProjectDir     string
	Success        bool
	FailureReason  string
	CreatedAt      time.Time
	StartedAt      time.Time
	CompletedAt    time.Time
}

// NewSandboxJobRecord allocates a fresh record with a newly generated id
// that will also serve as the project directory name.
func NewSandboxJobRecord(task, userID string) *SandboxJobRecord {
	return &SandboxJobRecord{
		ID:        uuid.New(),
		Task:      task,
		UserID:    userID,
		State:     SandboxCreating,
		CreatedAt: time.Now(),
	}
}
