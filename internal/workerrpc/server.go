// Package workerrpc implements the orchestrator side of the
// worker↔orchestrator RPC: the six /worker/{job_id}/... endpoints a
// sandboxed worker uses to fetch its job, proxy LLM calls, invoke
// tools, and report progress/completion without ever holding provider
// credentials itself.
package workerrpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ironclaw/core/internal/providers"
	"github.com/ironclaw/core/internal/tools"
	"github.com/ironclaw/core/internal/workerauth"
	"github.com/ironclaw/core/pkg/models"
)

// JobDescription is what /worker/{job_id}/job returns.
type JobDescription struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectDir  string `json:"project_dir,omitempty"`
}

// StatusUpdate is the body of /worker/{job_id}/status.
type StatusUpdate struct {
	State     string `json:"state"`
	Message   string `json:"message,omitempty"`
	Iteration uint32 `json:"iteration"`
}

// CompletionReport is the body of /worker/{job_id}/complete.
type CompletionReport struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Iterations uint32 `json:"iterations"`
}

// JobSource resolves a job id into the description and job context a
// worker is authorized to see, and receives its progress/completion
// reports. Implemented by the job scheduler.
type JobSource interface {
	WorkerJobDescription(jobID string) (JobDescription, bool)
	WorkerJobContext(jobID string) (*models.JobContext, bool)
	RecordStatus(jobID string, update StatusUpdate)
	RecordCompletion(jobID string, report CompletionReport)
}

// Server is the HTTP handler mounted at "/worker/". Every request must
// carry a bearer token whose subject matches the job id in the path;
// tokens scoped to a different job are rejected before any handler runs.
type Server struct {
	jobs     JobSource
	provider providers.LlmProvider
	executor *tools.Executor
	tokens   *workerauth.Issuer
	logger   *slog.Logger
}

// NewServer builds a Server. logger may be nil.
func NewServer(jobs JobSource, provider providers.LlmProvider, executor *tools.Executor, tokens *workerauth.Issuer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{jobs: jobs, provider: provider, executor: executor, tokens: tokens, logger: logger}
}

// ServeHTTP dispatches a /worker/{job_id}/... request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/worker/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		s.jsonError(w, "OrchestratorRejected", "job id required", http.StatusBadRequest)
		return
	}
	jobID, sub := parts[0], parts[1]

	if _, err := s.authenticate(r, jobID); err != nil {
		s.jsonError(w, "OrchestratorRejected", err.Error(), http.StatusUnauthorized)
		return
	}

	switch sub {
	case "job":
		s.handleJob(w, r, jobID)
	case "llm/complete":
		s.handleComplete(w, r, jobID)
	case "llm/complete_with_tools":
		s.handleCompleteWithTools(w, r, jobID)
	case "tools/call":
		s.handleToolCall(w, r, jobID)
	case "status":
		s.handleStatus(w, r, jobID)
	case "complete":
		s.handleCompletionReport(w, r, jobID)
	default:
		s.jsonError(w, "NotFound", "unknown worker endpoint", http.StatusNotFound)
	}
}

func (s *Server) authenticate(r *http.Request, jobID string) (*workerauth.Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return nil, errors.New("MissingToken")
	}
	token := strings.TrimSpace(authHeader[len("bearer "):])
	claims, err := s.tokens.Validate(token, jobID)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "MethodNotAllowed", "GET only", http.StatusMethodNotAllowed)
		return
	}
	desc, ok := s.jobs.WorkerJobDescription(jobID)
	if !ok {
		s.jsonError(w, "NotFound", "job not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, desc)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "MethodNotAllowed", "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req models.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := s.provider.Complete(r.Context(), req)
	if err != nil {
		s.jsonError(w, "LlmProxyFailed", err.Error(), http.StatusBadGateway)
		return
	}
	s.jsonResponse(w, resp)
}

func (s *Server) handleCompleteWithTools(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "MethodNotAllowed", "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req models.ToolCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := s.provider.CompleteWithTools(r.Context(), req)
	if err != nil {
		s.jsonError(w, "LlmProxyFailed", err.Error(), http.StatusBadGateway)
		return
	}
	s.jsonResponse(w, resp)
}

// toolCallRequest is the wire shape of a /worker/{job_id}/tools/call body.
type toolCallRequest struct {
	ToolCallID      string          `json:"tool_call_id"`
	ToolName        string          `json:"tool_name"`
	Params          json.RawMessage `json:"params"`
	TimeoutOverride int64           `json:"timeout_override_ms,omitempty"`
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "MethodNotAllowed", "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req toolCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
		return
	}
	jobCtx, ok := s.jobs.WorkerJobContext(jobID)
	if !ok {
		s.jsonError(w, "NotFound", "job not found", http.StatusNotFound)
		return
	}

	call := tools.Call{ToolCallID: req.ToolCallID, ToolName: req.ToolName, Params: req.Params}
	output, err := s.executor.DispatchWithRetry(r.Context(), call, jobCtx)
	if err != nil {
		if te, ok := tools.AsError(err); ok {
			s.jsonResponse(w, map[string]any{"error": te})
			return
		}
		s.jsonError(w, "ExecutionFailed", err.Error(), http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, output)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "MethodNotAllowed", "POST only", http.StatusMethodNotAllowed)
		return
	}
	var update StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.jsonError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
		return
	}
	s.jobs.RecordStatus(jobID, update)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompletionReport(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "MethodNotAllowed", "POST only", http.StatusMethodNotAllowed)
		return
	}
	var report CompletionReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		s.jsonError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
		return
	}
	s.jobs.RecordCompletion(jobID, report)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("json encode error", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message}); err != nil {
		s.logger.Error("json encode error", "error", err)
	}
}
