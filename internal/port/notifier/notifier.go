// Package notifier defines the notification port. Delivery (email, PEC,
// Slack, console) lives outside this engine; the orchestrator only calls
// the interface when a workflow suspends at a review checkpoint or reaches
// a terminal state.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is not properly configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`  // "info", "success", "warning", "error"
	Source  string `json:"source"` // e.g. "workflow.review_requested"
}

// Notifier is the port interface for sending notifications.
type Notifier interface {
	// Name returns the unique identifier for this notifier.
	Name() string

	// Send delivers a notification.
	Send(ctx context.Context, notification Notification) error
}
