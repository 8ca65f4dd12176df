// Package workflow defines the orchestration state machine and its specializations.
package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a workflow run.
type Status string

const (
	StatusPending       Status = "pending"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusPendingReview Status = "pending_review" // Suspended at a human-review checkpoint
)

var validStatuses = map[Status]bool{
	StatusPending:       true,
	StatusInProgress:    true,
	StatusCompleted:     true,
	StatusFailed:        true,
	StatusPendingReview: true,
}

// IsValid returns true if the status is a known variant.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal returns true for statuses with no outgoing transition.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// String returns the canonical lowercase wire string.
func (s Status) String() string {
	return string(s)
}

// BaseState is the mutable record shared by all workflow specializations.
// CompletedAt is set exactly when the status is terminal. Errors are fatal:
// recording one forces the run to failed. Warnings never change status.
//
// A state is owned by a single in-flight run; it carries no internal locking.
type BaseState struct {
	WorkflowID    string     `json:"workflow_id"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Status        Status     `json:"status"`
	Errors        []string   `json:"errors"`
	Warnings      []string   `json:"warnings"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewBaseState creates a state with a generated workflow id. Status defaults
// to pending; pass StatusInProgress to construct a resumed run.
func NewBaseState(correlationID string, status Status) BaseState {
	if status == "" {
		status = StatusPending
	}
	return BaseState{
		WorkflowID:    uuid.NewString(),
		CorrelationID: correlationID,
		Status:        status,
		Errors:        []string{},
		Warnings:      []string{},
		CreatedAt:     time.Now().UTC(),
	}
}

// AddError records a fatal error and transitions the run to failed.
// This is a recorded event, not a control-flow fault; no panic, no error return.
func (s *BaseState) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
	s.Status = StatusFailed
	now := time.Now().UTC()
	s.CompletedAt = &now
}

// AddWarning records a non-fatal observation. Status is unchanged.
func (s *BaseState) AddWarning(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// MarkCompleted transitions the run to completed and stamps CompletedAt.
// Precondition: only call when no errors were recorded; calling it on an
// already failed state is a driver logic error.
func (s *BaseState) MarkCompleted() {
	s.Status = StatusCompleted
	now := time.Now().UTC()
	s.CompletedAt = &now
}
