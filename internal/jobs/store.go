// Package jobs implements the job scheduler: the LLM↔tool loop that
// drives one Job from Pending to a terminal state, plus the in-memory
// store and periodic stuck-job sweep that back it.
package jobs

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ironclaw/core/pkg/models"
)

// Store holds every Job and its JobContext the scheduler knows about.
// Job context is owned by exactly one scheduler slot at a time, but the
// store itself is safe for concurrent reads from status queries while a
// slot mutates its own job.
type Store struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entry
}

type entry struct {
	job *models.Job
	ctx *models.JobContext
}

// NewStore creates an empty in-memory job store.
func NewStore() *Store {
	return &Store{jobs: make(map[uuid.UUID]*entry)}
}

// Create registers a fresh Pending job and returns its context.
func (s *Store) Create(job *models.Job) *models.JobContext {
	ctx := models.NewJobContext(job)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &entry{job: job, ctx: ctx}
	return ctx
}

// Get returns the job and its context by id.
func (s *Store) Get(id uuid.UUID) (*models.Job, *models.JobContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, nil, false
	}
	return e.job, e.ctx, true
}

// List returns every job currently tracked, in no particular order.
func (s *Store) List() []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.job)
	}
	return out
}

// StuckCandidates returns the context of every job currently in
// JobRunning, for the periodic sweep to evaluate against its own
// last-progress bookkeeping.
func (s *Store) StuckCandidates() []*models.JobContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.JobContext
	for _, e := range s.jobs {
		if e.job.State == models.JobRunning {
			out = append(out, e.ctx)
		}
	}
	return out
}
