// Package review defines the human review decision value for workflow checkpoints.
package review

import "fmt"

// Decision is the outcome of a human review at a checkpoint.
type Decision string

const (
	DecisionApprove        Decision = "approve"
	DecisionReject         Decision = "reject"
	DecisionRequestChanges Decision = "request_changes"
)

var validDecisions = map[Decision]bool{
	DecisionApprove:        true,
	DecisionReject:         true,
	DecisionRequestChanges: true,
}

// IsValid returns true if the decision is a known variant.
func (d Decision) IsValid() bool {
	return validDecisions[d]
}

// String returns the canonical lowercase wire string.
func (d Decision) String() string {
	return string(d)
}

// HumanReview captures one human approval decision for a checkpoint.
// Immutable once constructed; a later review for the same checkpoint
// replaces the workflow state's reference, it never mutates this value.
type HumanReview struct {
	Decision Decision `json:"decision"`
	Feedback string   `json:"feedback,omitempty"`
	Reviewer string   `json:"reviewer,omitempty"`
}

// New constructs a validated HumanReview.
func New(decision Decision, feedback, reviewer string) (*HumanReview, error) {
	if !decision.IsValid() {
		return nil, fmt.Errorf("human review: invalid decision %q", decision)
	}
	return &HumanReview{Decision: decision, Feedback: feedback, Reviewer: reviewer}, nil
}

// Approved reports whether the review opens its gate.
func (r *HumanReview) Approved() bool {
	return r.Decision == DecisionApprove
}

// ToMap serializes the review to its wire form, omitting unset optionals.
func (r *HumanReview) ToMap() map[string]any {
	m := map[string]any{
		"decision": r.Decision.String(),
	}
	if r.Feedback != "" {
		m["feedback"] = r.Feedback
	}
	if r.Reviewer != "" {
		m["reviewer"] = r.Reviewer
	}
	return m
}
