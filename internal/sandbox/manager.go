package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ironclaw/core/internal/metrics"
	"github.com/ironclaw/core/internal/workerauth"
	"github.com/ironclaw/core/pkg/models"
)

// PollInterval is the cadence a delegating tool polls container state at.
const PollInterval = 2 * time.Second

// PollCeiling bounds how long a delegating tool will keep polling before
// it stops the container and marks the job Failed.
const PollCeiling = 10 * time.Minute

// Runner starts and stops a worker container. The default implementation
// shells out to the detected runtime's CLI; tests substitute a fake.
type Runner interface {
	// Start launches the worker image with env injected and returns a
	// container id the Runner can later Stop by.
	Start(ctx context.Context, image string, env map[string]string, bindMount string) (containerID string, err error)
	// Stop terminates the container, best-effort.
	Stop(ctx context.Context, containerID string) error
}

// CLIRunner drives docker/podman via the CLI, matching the rest of this
// codebase's preference for shelling out to external tools (see
// internal/skills's git-backed discovery) over vendoring a client SDK.
type CLIRunner struct {
	Runtime Runtime
}

func (r CLIRunner) binary() string {
	if r.Runtime == RuntimePodman {
		return "podman"
	}
	return "docker"
}

func (r CLIRunner) Start(ctx context.Context, image string, env map[string]string, bindMount string) (string, error) {
	args := []string{"run", "-d", "--rm", "-v", bindMount + ":/workspace"}
	for k, v := range env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, image)

	cmd := exec.CommandContext(ctx, r.binary(), args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("sandbox: start container: %w", err)
	}
	id := string(out)
	for len(id) > 0 && (id[len(id)-1] == '\n' || id[len(id)-1] == '\r') {
		id = id[:len(id)-1]
	}
	return id, nil
}

func (r CLIRunner) Stop(ctx context.Context, containerID string) error {
	cmd := exec.CommandContext(ctx, r.binary(), "stop", containerID)
	return cmd.Run()
}

// Manager creates and tracks sandboxed worker containers: one
// SandboxJobRecord per delegated job, keyed by the job id that also
// names its bind-mount directory under ProjectRoot.
type Manager struct {
	ProjectRoot     string
	OrchestratorURL string
	Image           string
	Tokens          *workerauth.Issuer
	Runner          Runner

	// PollInterval and PollCeiling govern Poll's cadence and timeout.
	// NewManager sets the package defaults; tests may override either
	// for a faster run.
	PollInterval time.Duration
	PollCeiling  time.Duration

	mu      sync.RWMutex
	records map[string]*record

	metrics *metrics.Metrics
}

// WithMetrics attaches a collector set that Create/Cleanup report active
// container counts and job durations to. Passing nil disables
// instrumentation; it is also the zero-value behavior.
func (m *Manager) WithMetrics(mx *metrics.Metrics) *Manager {
	m.metrics = mx
	return m
}

type record struct {
	job         *models.SandboxJobRecord
	containerID string
}

// NewManager builds a Manager. tokens mints the job-scoped bearer token
// injected into each container's environment.
func NewManager(projectRoot, orchestratorURL, image string, tokens *workerauth.Issuer, runner Runner) *Manager {
	return &Manager{
		ProjectRoot:     projectRoot,
		OrchestratorURL: orchestratorURL,
		Image:           image,
		Tokens:          tokens,
		Runner:          runner,
		PollInterval:    PollInterval,
		PollCeiling:     PollCeiling,
		records:         make(map[string]*record),
	}
}

// Create allocates a SandboxJobRecord, creates its bind-mount directory,
// mints a job-scoped token, and starts the worker container. The record
// id, DB key, and directory name are all the same UUID, reused by
// construction rather than assigned independently.
func (m *Manager) Create(ctx context.Context, task, userID string) (*models.SandboxJobRecord, error) {
	job := models.NewSandboxJobRecord(task, userID)
	job.ProjectDir = filepath.Join(m.ProjectRoot, job.ID.String())

	if err := os.MkdirAll(job.ProjectDir, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create project dir: %w", err)
	}

	token, err := m.Tokens.Issue(job.ID.String(), job.ID.String())
	if err != nil {
		return nil, fmt.Errorf("sandbox: issue worker token: %w", err)
	}

	m.mu.Lock()
	m.records[job.ID.String()] = &record{job: job}
	m.mu.Unlock()

	env := map[string]string{
		"IRONCLAW_ORCHESTRATOR_URL": m.OrchestratorURL,
		"IRONCLAW_JOB_ID":           job.ID.String(),
		"IRONCLAW_WORKER_TOKEN":     token,
	}

	containerID, err := m.Runner.Start(ctx, m.Image, env, job.ProjectDir)
	if err != nil {
		job.State = models.SandboxFailed
		job.FailureReason = err.Error()
		job.CompletedAt = time.Now()
		return job, err
	}

	job.StartedAt = time.Now()
	job.State = models.SandboxRunning

	m.mu.Lock()
	m.records[job.ID.String()].containerID = containerID
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SandboxJobsActive.Inc()
	}

	return job, nil
}

// Get returns the current record for id, if known.
func (m *Manager) Get(id string) (*models.SandboxJobRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, false
	}
	return r.job, true
}

// ReportCompletion records a worker's terminal report and moves the
// record to Stopped. It is the Stopped-state analogue of the scheduler's
// fallback construction: whatever the worker last reported determines
// success.
func (m *Manager) ReportCompletion(id string, success bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return
	}
	r.job.State = models.SandboxStopped
	r.job.Success = success
	r.job.FailureReason = reason
	r.job.CompletedAt = time.Now()
}

// Poll waits for id to leave SandboxRunning, checking every
// PollInterval, up to PollCeiling. On timeout it stops the container and
// marks the record Failed with "timed out".
func (m *Manager) Poll(ctx context.Context, id string) (*models.SandboxJobRecord, error) {
	deadline := time.Now().Add(m.PollCeiling)
	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()

	for {
		job, ok := m.Get(id)
		if !ok {
			return nil, fmt.Errorf("sandbox: unknown job %s", id)
		}
		if job.State != models.SandboxRunning {
			return job, nil
		}
		if time.Now().After(deadline) {
			m.fail(id, "timed out")
			job, _ = m.Get(id)
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) fail(id, reason string) {
	m.mu.Lock()
	r, ok := m.records[id]
	if ok {
		r.job.State = models.SandboxFailed
		r.job.FailureReason = reason
		r.job.CompletedAt = time.Now()
	}
	containerID := ""
	if ok {
		containerID = r.containerID
	}
	m.mu.Unlock()

	if containerID != "" {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = m.Runner.Stop(stopCtx, containerID)
	}
}

// Cleanup releases in-memory tracking for id once its record is
// terminal. The project directory is left in place — it is the user's
// workspace for that sandbox and outlives the container.
func (m *Manager) Cleanup(id string) {
	m.mu.Lock()
	r, ok := m.records[id]
	delete(m.records, id)
	m.mu.Unlock()

	if !ok || m.metrics == nil {
		return
	}
	m.metrics.SandboxJobsActive.Dec()
	status := "stopped"
	if r.job.State == models.SandboxFailed {
		status = "failed"
	}
	m.metrics.SandboxJobDuration.WithLabelValues(status).Observe(r.job.CompletedAt.Sub(r.job.StartedAt).Seconds())
}
