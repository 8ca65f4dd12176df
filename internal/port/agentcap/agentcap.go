// Package agentcap defines the agent capability port (interface) and registry.
package agentcap

import (
	"context"
	"fmt"
	"sync"

	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/domain/conversation"
	"github.com/fatturaflow/fatturaflow/internal/domain/sharedctx"
)

// Invoker is the port interface for one agent capability. Ordinary failures
// (network, rate limit, model refusal) must be reported inside the Result,
// not as a Go error; the error return is reserved for programming faults
// such as an unrenderable prompt.
type Invoker interface {
	// AgentType returns the capability this invoker implements.
	AgentType() agent.Type

	// Invoke runs the agent against the shared business snapshot and the
	// relevant slice of conversation history.
	Invoke(ctx context.Context, sc sharedctx.SharedContext, history []conversation.Message) (*agent.Result, error)
}

// Registry maps agent types to invokers. It is an explicit value handed to
// the orchestrator at construction; there is no process-wide registry.
type Registry struct {
	mu       sync.RWMutex
	invokers map[agent.Type]Invoker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{invokers: make(map[agent.Type]Invoker)}
}

// Register adds an invoker for its agent type.
// Registering the same type twice is a wiring bug and returns an error.
func (r *Registry) Register(inv Invoker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := inv.AgentType()
	if !t.IsValid() {
		return fmt.Errorf("agentcap: invalid agent type %q", t)
	}
	if _, exists := r.invokers[t]; exists {
		return fmt.Errorf("agentcap: duplicate registration for %q", t)
	}
	r.invokers[t] = inv
	return nil
}

// Get returns the invoker for the given agent type.
func (r *Registry) Get(t agent.Type) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invokers[t]
	if !ok {
		return nil, fmt.Errorf("agentcap: no invoker registered for %q", t)
	}
	return inv, nil
}

// Available returns the registered agent types.
func (r *Registry) Available() []agent.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]agent.Type, 0, len(r.invokers))
	for t := range r.invokers {
		types = append(types, t)
	}
	return types
}
