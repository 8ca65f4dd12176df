package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fatturaflow/fatturaflow/internal/domain"
	"github.com/fatturaflow/fatturaflow/internal/domain/review"
	"github.com/fatturaflow/fatturaflow/internal/domain/sharedctx"
	"github.com/fatturaflow/fatturaflow/internal/domain/workflow"
	"github.com/fatturaflow/fatturaflow/internal/port/messagequeue"
)

// ReviewRequest carries a reviewer decision for one suspended checkpoint.
type ReviewRequest struct {
	Checkpoint string                  `json:"checkpoint"`
	Decision   review.Decision         `json:"decision"`
	Feedback   string                  `json:"feedback,omitempty"`
	Reviewer   string                  `json:"reviewer,omitempty"`
	Context    sharedctx.SharedContext `json:"context"`
}

// SubmitReview attaches a human review to a suspended workflow and resumes
// it. Only workflows in PENDING_REVIEW accept reviews; anything else returns
// domain.ErrNotPendingReview. A review for a checkpoint that already holds
// one replaces it.
func (s *Orchestrator) SubmitReview(ctx context.Context, workflowID string, req ReviewRequest) (*workflow.InvoiceCreationState, error) {
	rv, err := review.New(req.Decision, req.Feedback, req.Reviewer)
	if err != nil {
		return nil, fmt.Errorf("validate review: %w", err)
	}

	st, err := s.store.GetInvoiceWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	if st.Status != workflow.StatusPendingReview {
		return nil, fmt.Errorf("workflow %s in status %s: %w", workflowID, st.Status, domain.ErrNotPendingReview)
	}

	switch req.Checkpoint {
	case CheckpointDescription:
		st.DescriptionReview = rv
	case CheckpointTax:
		st.TaxReview = rv
	case CheckpointCompliance:
		st.ComplianceReview = rv
	default:
		return nil, fmt.Errorf("unknown checkpoint %q", req.Checkpoint)
	}

	st.Status = workflow.StatusInProgress
	if err := s.store.SaveInvoiceWorkflow(ctx, st); err != nil {
		return nil, fmt.Errorf("save reviewed workflow: %w", err)
	}
	s.publishResumed(ctx, st, req.Checkpoint)
	slog.Info("workflow resumed after review",
		"workflow_id", st.WorkflowID, "checkpoint", req.Checkpoint, "decision", rv.Decision)

	// The resumed run must not die with the reviewer's HTTP request: a
	// client disconnect mid-stage would otherwise park the state in
	// IN_PROGRESS, which no caller can act on. Detach before advancing.
	sc := req.Context.Clone()
	if err := s.advance(context.WithoutCancel(ctx), st, sc); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Orchestrator) publishResumed(ctx context.Context, st *workflow.InvoiceCreationState, checkpoint string) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.WorkflowEventPayload{
		WorkflowID:    st.WorkflowID,
		CorrelationID: st.CorrelationID,
		Status:        st.Status.String(),
		Checkpoint:    checkpoint,
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectWorkflowResumed, data); err != nil {
		slog.Warn("publish resume event failed", "workflow_id", st.WorkflowID, "error", err)
	}
}
