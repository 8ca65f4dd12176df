// Package conversation implements the bounded running history exchanged with agents.
package conversation

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one structured call requested by an assistant message.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is a single history entry.
type Message struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// clone returns a deep copy so callers never observe aliasing with the
// stored history.
func (m Message) clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc
			if tc.Arguments != nil {
				out.ToolCalls[i].Arguments = append(json.RawMessage(nil), tc.Arguments...)
			}
		}
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Default ceilings for a history constructed with NewHistory.
const (
	DefaultMaxMessages = 20
	DefaultMaxTokens   = 4000
)

// History is a bounded ordered log of messages. The message-count ceiling is
// enforced after every append; the token ceiling is advisory and applied by
// TrimToTokenBudget. System messages survive truncation ahead of everything else.
//
// A History is not safe for concurrent use; each workflow run owns its own.
type History struct {
	messages    []Message
	maxMessages int
	maxTokens   int
}

// NewHistory creates a History with the default ceilings.
func NewHistory() *History {
	h, _ := NewHistoryWithLimits(DefaultMaxMessages, DefaultMaxTokens)
	return h
}

// NewHistoryWithLimits creates a History with the given ceilings.
// Non-positive limits are a validation error, never silently adjusted.
func NewHistoryWithLimits(maxMessages, maxTokens int) (*History, error) {
	if maxMessages <= 0 {
		return nil, fmt.Errorf("conversation history: max_messages %d must be positive", maxMessages)
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("conversation history: max_tokens %d must be positive", maxTokens)
	}
	return &History{maxMessages: maxMessages, maxTokens: maxTokens}, nil
}

// AddUser appends a user message.
func (h *History) AddUser(content string) {
	h.append(Message{Role: RoleUser, Content: content})
}

// AddAssistant appends an assistant message.
func (h *History) AddAssistant(content string) {
	h.append(Message{Role: RoleAssistant, Content: content})
}

// AddAssistantToolCalls appends an assistant message carrying tool calls.
func (h *History) AddAssistantToolCalls(content string, calls []ToolCall) {
	h.append(Message{Role: RoleAssistant, Content: content, ToolCalls: calls})
}

// AddSystem appends a system message.
func (h *History) AddSystem(content string) {
	h.append(Message{Role: RoleSystem, Content: content})
}

// AddToolResult appends a tool result message answering a prior tool call.
func (h *History) AddToolResult(name, toolCallID, content string) {
	h.append(Message{Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID})
}

func (h *History) append(m Message) {
	h.messages = append(h.messages, m.clone())
	h.truncate()
}

// truncate enforces the message-count ceiling. System messages are kept in
// full (in original order, moved to the front) as long as they fit; the
// oldest non-system messages are dropped first. When system messages alone
// exceed the ceiling, only the most recently added system messages survive.
func (h *History) truncate() {
	if len(h.messages) <= h.maxMessages {
		return
	}

	var system, other []Message
	for _, m := range h.messages {
		if m.Role == RoleSystem {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}

	if len(system) >= h.maxMessages {
		h.messages = system[len(system)-h.maxMessages:]
		return
	}

	keep := h.maxMessages - len(system)
	if keep > len(other) {
		keep = len(other)
	}
	kept := make([]Message, 0, h.maxMessages)
	kept = append(kept, system...)
	kept = append(kept, other[len(other)-keep:]...)
	h.messages = kept
}

// EstimatedTokens returns a cheap token estimate for the whole history,
// using the ~4 characters per token heuristic.
func (h *History) EstimatedTokens() int {
	total := 0
	for _, m := range h.messages {
		total += estimateTokens(m.Content)
	}
	return total
}

func estimateTokens(s string) int {
	return len(s)/4 + 1
}

// TrimToTokenBudget drops the oldest non-system messages until the estimated
// token count fits under the configured budget. The message-count ceiling has
// already been applied by every append; this is the advisory second limit.
func (h *History) TrimToTokenBudget() {
	for h.EstimatedTokens() > h.maxTokens {
		idx := -1
		for i, m := range h.messages {
			if m.Role != RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		h.messages = append(h.messages[:idx], h.messages[idx+1:]...)
	}
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	return len(h.messages)
}

// Messages returns an independent copy of the history, optionally without
// system messages. Mutating the result never affects the stored log.
func (h *History) Messages(includeSystem bool) []Message {
	out := make([]Message, 0, len(h.messages))
	for _, m := range h.messages {
		if !includeSystem && m.Role == RoleSystem {
			continue
		}
		out = append(out, m.clone())
	}
	return out
}

// LastN returns copies of the last min(n, len) messages.
func (h *History) LastN(n int) []Message {
	if n <= 0 {
		return nil
	}
	if n > len(h.messages) {
		n = len(h.messages)
	}
	out := make([]Message, 0, n)
	for _, m := range h.messages[len(h.messages)-n:] {
		out = append(out, m.clone())
	}
	return out
}

// Clear empties the log. The configured ceilings are retained.
func (h *History) Clear() {
	h.messages = nil
}

// ToList serializes the history to its wire form: one mapping per message
// with role and content, plus name/tool_call_id/tool_calls only when set.
// External tooling depends on absent optionals being omitted, not null.
func (h *History) ToList() []map[string]any {
	out := make([]map[string]any, 0, len(h.messages))
	for _, m := range h.messages {
		entry := map[string]any{
			"role":    string(m.Role),
			"content": m.Content,
		}
		if m.Name != "" {
			entry["name"] = m.Name
		}
		if m.ToolCallID != "" {
			entry["tool_call_id"] = m.ToolCallID
		}
		if len(m.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				call := map[string]any{
					"id":   tc.ID,
					"name": tc.Name,
				}
				if tc.Arguments != nil {
					call["arguments"] = json.RawMessage(append(json.RawMessage(nil), tc.Arguments...))
				}
				calls = append(calls, call)
			}
			entry["tool_calls"] = calls
		}
		out = append(out, entry)
	}
	return out
}
