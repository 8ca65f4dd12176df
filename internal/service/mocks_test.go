package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fatturaflow/fatturaflow/internal/domain"
	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/domain/conversation"
	"github.com/fatturaflow/fatturaflow/internal/domain/sharedctx"
	"github.com/fatturaflow/fatturaflow/internal/domain/workflow"
	"github.com/fatturaflow/fatturaflow/internal/port/messagequeue"
)

// mockStore is an in-memory workflowstore.Store for driver tests.
type mockStore struct {
	mu         sync.Mutex
	workflows  map[string]*workflow.InvoiceCreationState
	checks     map[string]*workflow.ComplianceCheckState
	saveErr    error
	saveCount  int
	checkCount int
}

func newMockStore() *mockStore {
	return &mockStore{
		workflows: map[string]*workflow.InvoiceCreationState{},
		checks:    map[string]*workflow.ComplianceCheckState{},
	}
}

func (m *mockStore) SaveInvoiceWorkflow(_ context.Context, st *workflow.InvoiceCreationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saveCount++
	cp := *st
	m.workflows[st.WorkflowID] = &cp
	return nil
}

func (m *mockStore) GetInvoiceWorkflow(_ context.Context, id string) (*workflow.InvoiceCreationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	cp := *st
	return &cp, nil
}

func (m *mockStore) ListInvoiceWorkflowsPendingReview(context.Context) ([]workflow.InvoiceCreationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []workflow.InvoiceCreationState
	for _, st := range m.workflows {
		if st.Status == workflow.StatusPendingReview {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (m *mockStore) SaveComplianceCheck(_ context.Context, st *workflow.ComplianceCheckState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkCount++
	cp := *st
	m.checks[st.InvoiceID] = &cp
	return nil
}

func (m *mockStore) GetComplianceCheck(_ context.Context, id string) (*workflow.ComplianceCheckState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.checks[id]
	if !ok {
		return nil, fmt.Errorf("compliance check %s: %w", id, domain.ErrNotFound)
	}
	cp := *st
	return &cp, nil
}

// mockInvoker returns canned results per agent type.
type mockInvoker struct {
	agentType agent.Type
	result    *agent.Result
	err       error
	calls     int
	lastCtx   sharedctx.SharedContext
}

func (m *mockInvoker) AgentType() agent.Type { return m.agentType }

func (m *mockInvoker) Invoke(_ context.Context, sc sharedctx.SharedContext, _ []conversation.Message) (*agent.Result, error) {
	m.calls++
	m.lastCtx = sc
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockQueue records published subjects.
type mockQueue struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mockQueue) Publish(_ context.Context, subject string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (m *mockQueue) Drain() error      { return nil }
func (m *mockQueue) Close() error      { return nil }
func (m *mockQueue) IsConnected() bool { return true }

func (m *mockQueue) published(subject string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// mapCache is a trivial cache.Cache backend.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]byte(nil), value...)
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// extractionContent builds a canned extraction agent reply body.
func extractionContent(clientID string, items []workflow.LineItem) string {
	data, _ := json.Marshal(map[string]any{
		"client_id":  clientID,
		"line_items": items,
	})
	return string(data)
}
