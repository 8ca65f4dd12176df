// Package workflowstore defines the persistence port for workflow states.
package workflowstore

import (
	"context"

	"github.com/fatturaflow/fatturaflow/internal/domain/workflow"
)

// Store is the port interface for persisting workflow state. The engine
// treats states as values; identity and versioning belong to the adapter.
type Store interface {
	// Invoice creation workflows
	SaveInvoiceWorkflow(ctx context.Context, st *workflow.InvoiceCreationState) error
	GetInvoiceWorkflow(ctx context.Context, workflowID string) (*workflow.InvoiceCreationState, error)
	ListInvoiceWorkflowsPendingReview(ctx context.Context) ([]workflow.InvoiceCreationState, error)

	// Compliance checks. Lookup is by the invoice workflow id; when an
	// invoice was checked more than once, the most recent check wins.
	SaveComplianceCheck(ctx context.Context, st *workflow.ComplianceCheckState) error
	GetComplianceCheck(ctx context.Context, invoiceWorkflowID string) (*workflow.ComplianceCheckState, error)
}
