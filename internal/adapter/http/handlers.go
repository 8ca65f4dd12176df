package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/fatturaflow/fatturaflow/internal/domain/workflow"
	"github.com/fatturaflow/fatturaflow/internal/service"
)

// HealthChecker reports the status of one infrastructure dependency.
type HealthChecker interface {
	Name() string
	Healthy(ctx context.Context) error
}

// Handlers bundles the HTTP handlers with their service dependencies.
type Handlers struct {
	Orchestrator *service.Orchestrator
	Checkers     []HealthChecker
}

// NewHandlers creates the handler set.
func NewHandlers(orchestrator *service.Orchestrator, checkers ...HealthChecker) *Handlers {
	return &Handlers{Orchestrator: orchestrator, Checkers: checkers}
}

// StartWorkflow handles POST /api/v1/workflows/invoice. The workflow is
// created synchronously and advanced in the background; the response carries
// the created state so callers can poll by id.
func (h *Handlers) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.StartRequest](w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.UserInput) == "" {
		writeError(w, http.StatusBadRequest, "user_input is required")
		return
	}

	st, err := h.Orchestrator.StartInvoiceWorkflowAsync(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// GetWorkflow handles GET /api/v1/workflows/{id}.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	st, err := h.Orchestrator.GetWorkflow(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListPendingReview handles GET /api/v1/workflows/pending-review.
func (h *Handlers) ListPendingReview(w http.ResponseWriter, r *http.Request) {
	states, err := h.Orchestrator.ListPendingReview(r.Context())
	if err != nil {
		writeDomainError(w, err, "workflows not found")
		return
	}
	if states == nil {
		states = []workflow.InvoiceCreationState{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": states,
		"count":     len(states),
	})
}

// SubmitReview handles POST /api/v1/workflows/{id}/review. The review is
// applied and the workflow resumed synchronously; the response is the state
// after resumption.
func (h *Handlers) SubmitReview(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[service.ReviewRequest](w, r)
	if !ok {
		return
	}
	if req.Checkpoint == "" {
		writeError(w, http.StatusBadRequest, "checkpoint is required")
		return
	}

	st, err := h.Orchestrator.SubmitReview(r.Context(), id, req)
	if err != nil {
		if strings.Contains(err.Error(), "invalid decision") ||
			strings.Contains(err.Error(), "unknown checkpoint") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetComplianceCheck handles GET /api/v1/workflows/{id}/compliance.
func (h *Handlers) GetComplianceCheck(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	st, err := h.Orchestrator.GetComplianceCheck(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "compliance check not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Healthz handles GET /healthz, the liveness probe.
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health handles GET /health, checking each wired dependency.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true
	for _, c := range h.Checkers {
		if err := c.Healthy(r.Context()); err != nil {
			checks[c.Name()] = err.Error()
			healthy = false
		} else {
			checks[c.Name()] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}
