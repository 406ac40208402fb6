package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is one of the six lifecycle states a Job may occupy.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobStuck     JobState = "stuck"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether a state is one a job can no longer leave.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// ChannelContext records which inbound channel originated a job, without
// pulling in any concrete channel-adapter client. Channel adapters are
// not part of this module; this is the only trace of them that survives.
type ChannelContext struct {
	Name     string `json:"name"`
	TargetID string `json:"target_id"`
}

// Job is one execution of the agentic loop for one user request.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	UserID      string          `json:"user_id"`
	Channel     ChannelContext  `json:"channel"`
	State       JobState        `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
	TokensUsed  uint64          `json:"tokens_used"`
	ActualCost  Cost            `json:"actual_cost"`
	RepairCount uint32          `json:"repair_attempts"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// Cost is a fixed-point decimal amount, stored as integer micro-units
// (1e-6 currency) so arithmetic never touches floating point.
type Cost struct {
	Micros int64 `json:"-"`
}

// Add returns the sum of two costs. Cost is monotonically increasing
// over a job's lifetime, so callers never need to subtract.
func (c Cost) Add(other Cost) Cost {
	return Cost{Micros: c.Micros + other.Micros}
}

// String renders the cost as a decimal string, e.g. "0.003421", the
// JSON-safe representation required by the Fallback Deliverable shape.
func (c Cost) String() string {
	sign := ""
	micros := c.Micros
	if micros < 0 {
		sign = "-"
		micros = -micros
	}
	whole := micros / 1_000_000
	frac := micros % 1_000_000
	return sign + itoa(whole) + "." + pad6(frac)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func pad6(n int64) string {
	s := itoa(n)
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}

// MarshalJSON renders Cost as its decimal string form.
func (c Cost) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// JobContext is the mutable working state a scheduler slot owns while
// driving a single job through the LLM/tool loop. Exactly one scheduler
// slot owns a JobContext at a time.
type JobContext struct {
	Job *Job

	// ToolNestingDepth guards against runaway nested tool invocation
	// (e.g. a tool that itself dispatches another tool call). Capped at 5
	// by the executor regardless of what a container worker reports.
	ToolNestingDepth uint32

	// ExtraEnv is forwarded into any sandboxed worker process spawned on
	// behalf of this job.
	ExtraEnv map[string]string

	// Iteration counts LLM↔tool round trips for this job.
	Iteration int

	mu          sync.Mutex
	cancelled   bool
	cancelOnce  sync.Once
	actions     []Action
}

// NewJobContext seeds a JobContext for a freshly created job.
func NewJobContext(job *Job) *JobContext {
	return &JobContext{
		Job:      job,
		ExtraEnv: make(map[string]string),
	}
}

// Cancel marks the context cancelled exactly once. Cancellation is
// monotonic: once set it can never be unset.
func (c *JobContext) Cancel() {
	c.cancelOnce.Do(func() {
		c.mu.Lock()
		c.cancelled = true
		c.mu.Unlock()
	})
}

// Cancelled reports whether Cancel has been called.
func (c *JobContext) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// RecordAction appends an Action to the job's append-only action log.
func (c *JobContext) RecordAction(a Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, a)
}

// Actions returns a defensive copy of the action log in dispatch order.
func (c *JobContext) Actions() []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Action, len(c.actions))
	copy(out, c.actions)
	return out
}

// ActionStats summarises the action log into total/successful/failed
// counts. The invariant successful+failed=total holds by construction.
func (c *JobContext) ActionStats() ActionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := ActionStats{Total: len(c.actions)}
	for _, a := range c.actions {
		if a.Success() {
			stats.Successful++
		} else {
			stats.Failed++
		}
	}
	return stats
}
