package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fatturaflow/fatturaflow/internal/domain"
	"github.com/fatturaflow/fatturaflow/internal/domain/workflow"
)

// Store implements the workflowstore port on PostgreSQL. States are stored
// as JSONB documents with the identity and status columns extracted for
// indexing; the document is the source of truth.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveInvoiceWorkflow upserts the full state document.
func (s *Store) SaveInvoiceWorkflow(ctx context.Context, st *workflow.InvoiceCreationState) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal invoice workflow: %w", err)
	}

	const q = `INSERT INTO invoice_workflows
		(id, correlation_id, status, state, created_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			state = EXCLUDED.state,
			completed_at = EXCLUDED.completed_at,
			updated_at = now()`
	_, err = s.pool.Exec(ctx, q,
		st.WorkflowID, nullIfEmpty(st.CorrelationID), st.Status.String(),
		doc, st.CreatedAt, st.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save invoice workflow %s: %w", st.WorkflowID, err)
	}
	return nil
}

// GetInvoiceWorkflow loads one state document by workflow id.
func (s *Store) GetInvoiceWorkflow(ctx context.Context, workflowID string) (*workflow.InvoiceCreationState, error) {
	const q = `SELECT state FROM invoice_workflows WHERE id = $1`

	var doc []byte
	if err := s.pool.QueryRow(ctx, q, workflowID).Scan(&doc); err != nil {
		return nil, notFoundWrap(err, "get invoice workflow %s", workflowID)
	}

	st := &workflow.InvoiceCreationState{}
	if err := json.Unmarshal(doc, st); err != nil {
		return nil, fmt.Errorf("unmarshal invoice workflow %s: %w", workflowID, err)
	}
	return st, nil
}

// ListInvoiceWorkflowsPendingReview returns all suspended invoice workflows,
// oldest first, for the external scheduler.
func (s *Store) ListInvoiceWorkflowsPendingReview(ctx context.Context) ([]workflow.InvoiceCreationState, error) {
	const q = `SELECT state FROM invoice_workflows
		WHERE status = $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, q, workflow.StatusPendingReview.String())
	if err != nil {
		return nil, fmt.Errorf("list pending review: %w", err)
	}
	defer rows.Close()

	var result []workflow.InvoiceCreationState
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan pending review: %w", err)
		}
		var st workflow.InvoiceCreationState
		if err := json.Unmarshal(doc, &st); err != nil {
			return nil, fmt.Errorf("unmarshal pending review: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// SaveComplianceCheck upserts the compliance state document.
func (s *Store) SaveComplianceCheck(ctx context.Context, st *workflow.ComplianceCheckState) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal compliance check: %w", err)
	}

	const q = `INSERT INTO compliance_checks
		(id, invoice_id, status, state, created_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			state = EXCLUDED.state,
			completed_at = EXCLUDED.completed_at,
			updated_at = now()`
	_, err = s.pool.Exec(ctx, q,
		st.WorkflowID, st.InvoiceID, st.Status.String(),
		doc, st.CreatedAt, st.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save compliance check %s: %w", st.WorkflowID, err)
	}
	return nil
}

// GetComplianceCheck loads the most recent compliance check recorded for
// an invoice workflow.
func (s *Store) GetComplianceCheck(ctx context.Context, invoiceWorkflowID string) (*workflow.ComplianceCheckState, error) {
	const q = `SELECT state FROM compliance_checks
		WHERE invoice_id = $1 ORDER BY created_at DESC LIMIT 1`

	var doc []byte
	if err := s.pool.QueryRow(ctx, q, invoiceWorkflowID).Scan(&doc); err != nil {
		return nil, notFoundWrap(err, "get compliance check for %s", invoiceWorkflowID)
	}

	st := &workflow.ComplianceCheckState{}
	if err := json.Unmarshal(doc, st); err != nil {
		return nil, fmt.Errorf("unmarshal compliance check for %s: %w", invoiceWorkflowID, err)
	}
	return st, nil
}

// nullIfEmpty returns nil for empty strings (for nullable columns).
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
