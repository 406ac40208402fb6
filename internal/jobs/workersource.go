package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/ironclaw/core/internal/workerrpc"
	"github.com/ironclaw/core/pkg/models"
)

// Store implements workerrpc.JobSource, so a sandboxed worker's
// /worker/{job_id}/... calls read and report against the same jobs the
// scheduler is driving.

// WorkerJobDescription returns what a worker is authorized to see about jobID.
func (s *Store) WorkerJobDescription(jobID string) (workerrpc.JobDescription, bool) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return workerrpc.JobDescription{}, false
	}
	job, _, ok := s.Get(id)
	if !ok {
		return workerrpc.JobDescription{}, false
	}
	return workerrpc.JobDescription{Title: job.Title, Description: job.Description}, true
}

// WorkerJobContext returns the live JobContext a worker's tool calls
// should be recorded against.
func (s *Store) WorkerJobContext(jobID string) (*models.JobContext, bool) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil, false
	}
	_, ctx, ok := s.Get(id)
	return ctx, ok
}

// RecordStatus accepts a worker's interim progress report. Delegated-job
// state transitions are driven by RecordCompletion, not interim status,
// so there is nothing to mutate here beyond confirming the job exists.
func (s *Store) RecordStatus(jobID string, update workerrpc.StatusUpdate) {
	_, _, _ = s.Get(mustParse(jobID))
}

func mustParse(id string) uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

// RegisterDelegatedJob seeds a running Job record under an id a
// container manager already minted for a sandboxed worker, so that
// worker's own /worker/{job_id}/job call finds something to fetch. It
// satisfies tools.DelegateRegistrar. The delegated job never runs
// through Scheduler.Run — its state is driven entirely by the worker's
// own status reports and final RecordCompletion.
func (s *Store) RegisterDelegatedJob(id uuid.UUID, title, description string) {
	now := time.Now()
	s.Create(&models.Job{
		ID:          id,
		Title:       title,
		Description: description,
		State:       models.JobRunning,
		CreatedAt:   now,
		StartedAt:   now,
	})
}

// RecordCompletion applies a worker's terminal report to its job.
func (s *Store) RecordCompletion(jobID string, report workerrpc.CompletionReport) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return
	}
	job, _, ok := s.Get(id)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if report.Success {
		job.State = models.JobCompleted
	} else {
		job.State = models.JobFailed
	}
}
