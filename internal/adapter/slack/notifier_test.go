package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatturaflow/fatturaflow/internal/port/notifier"
)

// Compile-time interface check.
var _ notifier.Notifier = (*Notifier)(nil)

func TestNotifierName(t *testing.T) {
	n := NewNotifier("")
	if n.Name() != "slack" {
		t.Fatalf("expected 'slack', got %q", n.Name())
	}
}

func TestSendNotConfigured(t *testing.T) {
	n := NewNotifier("")
	err := n.Send(context.Background(), notifier.Notification{Title: "test"})
	if err != notifier.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendSuccess(t *testing.T) {
	var posted struct {
		Blocks []struct {
			Type string `json:"type"`
			Text struct {
				Text string `json:"text"`
			} `json:"text"`
		} `json:"blocks"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	err := n.Send(context.Background(), notifier.Notification{
		Title:   "Invoice workflow needs review",
		Message: "workflow wf-1 is waiting for tax review",
		Level:   "warning",
		Source:  "workflow.review_requested",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(posted.Blocks) != 3 {
		t.Fatalf("expected header, body and context blocks, got %d", len(posted.Blocks))
	}
	if !strings.HasPrefix(posted.Blocks[0].Text.Text, "[WARN] ") {
		t.Errorf("header missing level tag: %q", posted.Blocks[0].Text.Text)
	}
	if !strings.Contains(posted.Blocks[2].Text.Text, "workflow.review_requested") {
		t.Errorf("context block missing source: %q", posted.Blocks[2].Text.Text)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	err := n.Send(context.Background(), notifier.Notification{Title: "t", Message: "m"})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
