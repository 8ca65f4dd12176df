// Package agent defines the agent invocation result value and agent types.
package agent

import "fmt"

// Type identifies which workflow capability produced a result.
type Type string

const (
	TypeExtraction    Type = "extraction"     // Parses natural-language input into invoice fields
	TypeDescription   Type = "description"    // Drafts line-item descriptions
	TypeTaxSuggestion Type = "tax_suggestion" // Suggests VAT treatment and tax details
	TypeCompliance    Type = "compliance"     // FatturaPA/SDI compliance analysis
)

var validTypes = map[Type]bool{
	TypeExtraction:    true,
	TypeDescription:   true,
	TypeTaxSuggestion: true,
	TypeCompliance:    true,
}

// IsValid returns true if the type is a known agent type.
func (t Type) IsValid() bool {
	return validTypes[t]
}

// String returns the canonical lowercase wire string.
func (t Type) String() string {
	return string(t)
}

// Result is the immutable outcome of one agent invocation.
// Error carries ordinary failures (network, rate limit, model refusal);
// a set Error means callers should treat the result as failed even when
// Success was left true by a buggy producer.
type Result struct {
	AgentType  Type           `json:"agent_type"`
	Success    bool           `json:"success"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewResult constructs a validated Result. Confidence outside [0, 1] is a
// validation error, never clamped.
func NewResult(agentType Type, success bool, content string, confidence float64) (*Result, error) {
	if !agentType.IsValid() {
		return nil, fmt.Errorf("agent result: invalid agent type %q", agentType)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("agent result: confidence %v outside [0, 1]", confidence)
	}
	return &Result{
		AgentType:  agentType,
		Success:    success,
		Content:    content,
		Confidence: confidence,
	}, nil
}

// Failure wraps an ordinary invocation fault (timeout, transport error) into
// a well-formed failed Result so gating logic always has something to evaluate.
func Failure(agentType Type, err error) *Result {
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	return &Result{
		AgentType:  agentType,
		Success:    false,
		Confidence: 0,
		Error:      msg,
	}
}

// Failed reports whether the result should be treated as a failure.
func (r *Result) Failed() bool {
	return !r.Success || r.Error != ""
}

// ToMap serializes the result to its wire form. Unset optional fields
// (error, metadata) are omitted, never emitted as null.
func (r *Result) ToMap() map[string]any {
	m := map[string]any{
		"agent_type": r.AgentType.String(),
		"success":    r.Success,
		"content":    r.Content,
		"confidence": r.Confidence,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if len(r.Metadata) > 0 {
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		m["metadata"] = meta
	}
	return m
}

// WithMetadata returns a copy of the result with the given metadata entry set.
// The receiver is not modified.
func (r *Result) WithMetadata(key string, value any) *Result {
	out := *r
	out.Metadata = make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return &out
}
