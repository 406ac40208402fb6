package workerrpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ironclaw/core/internal/tools"
	"github.com/ironclaw/core/internal/workerauth"
	"github.com/ironclaw/core/pkg/models"
)

type stubJobSource struct {
	desc        JobDescription
	jobCtx      *models.JobContext
	statuses    []StatusUpdate
	completions []CompletionReport
}

func (s *stubJobSource) WorkerJobDescription(jobID string) (JobDescription, bool) {
	return s.desc, jobID == "job-1"
}

func (s *stubJobSource) WorkerJobContext(jobID string) (*models.JobContext, bool) {
	return s.jobCtx, jobID == "job-1"
}

func (s *stubJobSource) RecordStatus(jobID string, update StatusUpdate) {
	s.statuses = append(s.statuses, update)
}

func (s *stubJobSource) RecordCompletion(jobID string, report CompletionReport) {
	s.completions = append(s.completions, report)
}

func newTestServer(t *testing.T) (*Server, *stubJobSource, *workerauth.Issuer) {
	t.Helper()
	issuer, err := workerauth.NewIssuer("secret", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	registry := tools.NewRegistry()
	executor := tools.NewExecutor(registry, tools.NewApprovalGate(nil))
	jobs := &stubJobSource{desc: JobDescription{Title: "t", Description: "d"}, jobCtx: &models.JobContext{}}
	return NewServer(jobs, nil, executor, issuer, nil), jobs, issuer
}

func TestServeHTTP_RejectsMissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/worker/job-1/job", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestServeHTTP_RejectsMismatchedJobToken(t *testing.T) {
	srv, _, issuer := newTestServer(t)
	token, _ := issuer.Issue("job-2", "sandbox-1")
	req := httptest.NewRequest(http.MethodGet, "/worker/job-1/job", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for mismatched job id, got %d", rec.Code)
	}
}

func TestServeHTTP_GetJob(t *testing.T) {
	srv, _, issuer := newTestServer(t)
	token, _ := issuer.Issue("job-1", "sandbox-1")

	req := httptest.NewRequest(http.MethodGet, "/worker/job-1/job", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var desc JobDescription
	if err := json.NewDecoder(rec.Body).Decode(&desc); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if desc.Title != "t" {
		t.Fatalf("expected job description to round-trip, got %+v", desc)
	}
}

func TestServeHTTP_StatusReport(t *testing.T) {
	srv, jobs, issuer := newTestServer(t)
	token, _ := issuer.Issue("job-1", "sandbox-1")

	body, _ := json.Marshal(StatusUpdate{State: "running", Iteration: 3})
	req := httptest.NewRequest(http.MethodPost, "/worker/job-1/status", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(jobs.statuses) != 1 || jobs.statuses[0].Iteration != 3 {
		t.Fatalf("expected status recorded, got %+v", jobs.statuses)
	}
}

func TestServeHTTP_CompletionReport(t *testing.T) {
	srv, jobs, issuer := newTestServer(t)
	token, _ := issuer.Issue("job-1", "sandbox-1")

	body, _ := json.Marshal(CompletionReport{Success: true, Iterations: 5})
	req := httptest.NewRequest(http.MethodPost, "/worker/job-1/complete", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(jobs.completions) != 1 || !jobs.completions[0].Success {
		t.Fatalf("expected completion recorded, got %+v", jobs.completions)
	}
}

func TestServeHTTP_UnknownPath(t *testing.T) {
	srv, _, issuer := newTestServer(t)
	token, _ := issuer.Issue("job-1", "sandbox-1")

	req := httptest.NewRequest(http.MethodGet, "/worker/job-1/bogus", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServeHTTP_MissingJobID(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/worker/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
