// Package memstore implements the workflow store port in memory. It backs
// tests and cache-less local development; states are deep-copied through
// JSON so callers never share mutable references with the store.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/fatturaflow/fatturaflow/internal/domain"
	"github.com/fatturaflow/fatturaflow/internal/domain/workflow"
)

// Store is a mutex-guarded in-memory workflow store.
type Store struct {
	mu          sync.RWMutex
	invoices    map[string][]byte
	compliances map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		invoices:    make(map[string][]byte),
		compliances: make(map[string][]byte),
	}
}

// SaveInvoiceWorkflow stores a deep copy of the state.
func (s *Store) SaveInvoiceWorkflow(_ context.Context, st *workflow.InvoiceCreationState) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal invoice workflow: %w", err)
	}
	s.mu.Lock()
	s.invoices[st.WorkflowID] = doc
	s.mu.Unlock()
	return nil
}

// GetInvoiceWorkflow returns a deep copy of the stored state.
func (s *Store) GetInvoiceWorkflow(_ context.Context, workflowID string) (*workflow.InvoiceCreationState, error) {
	s.mu.RLock()
	doc, ok := s.invoices[workflowID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get invoice workflow %s: %w", workflowID, domain.ErrNotFound)
	}
	st := &workflow.InvoiceCreationState{}
	if err := json.Unmarshal(doc, st); err != nil {
		return nil, fmt.Errorf("unmarshal invoice workflow %s: %w", workflowID, err)
	}
	return st, nil
}

// ListInvoiceWorkflowsPendingReview returns suspended workflows, oldest first.
func (s *Store) ListInvoiceWorkflowsPendingReview(_ context.Context) ([]workflow.InvoiceCreationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []workflow.InvoiceCreationState
	for _, doc := range s.invoices {
		var st workflow.InvoiceCreationState
		if err := json.Unmarshal(doc, &st); err != nil {
			return nil, fmt.Errorf("unmarshal pending review: %w", err)
		}
		if st.Status == workflow.StatusPendingReview {
			result = append(result, st)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// SaveComplianceCheck stores a deep copy of the compliance state, keyed by
// the invoice workflow it belongs to. A newer check replaces the older one.
func (s *Store) SaveComplianceCheck(_ context.Context, st *workflow.ComplianceCheckState) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal compliance check: %w", err)
	}
	s.mu.Lock()
	s.compliances[st.InvoiceID] = doc
	s.mu.Unlock()
	return nil
}

// GetComplianceCheck returns a deep copy of the compliance check recorded
// for an invoice workflow.
func (s *Store) GetComplianceCheck(_ context.Context, invoiceWorkflowID string) (*workflow.ComplianceCheckState, error) {
	s.mu.RLock()
	doc, ok := s.compliances[invoiceWorkflowID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get compliance check for %s: %w", invoiceWorkflowID, domain.ErrNotFound)
	}
	st := &workflow.ComplianceCheckState{}
	if err := json.Unmarshal(doc, st); err != nil {
		return nil, fmt.Errorf("unmarshal compliance check for %s: %w", invoiceWorkflowID, err)
	}
	return st, nil
}
