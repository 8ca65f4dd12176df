// Package slack posts workflow notifications to a Slack incoming webhook.
// Review checkpoints and terminal workflow states arrive as Block Kit
// messages so accountants can react without polling the API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatturaflow/fatturaflow/internal/port/notifier"
)

// Notifier delivers notifications through one configured webhook URL.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// NewNotifier creates a Slack notifier. An empty URL is allowed at
// construction; Send reports ErrNotConfigured instead.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Name() string { return "slack" }

type block struct {
	Type string `json:"type"`
	Text *text  `json:"text,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// buildBlocks renders a notification as header + body, with an optional
// context line naming the emitting event.
func buildBlocks(nt notifier.Notification) []block {
	blocks := []block{
		{Type: "header", Text: &text{Type: "plain_text", Text: levelTag(nt.Level) + " " + nt.Title}},
		{Type: "section", Text: &text{Type: "mrkdwn", Text: nt.Message}},
	}
	if nt.Source != "" {
		blocks = append(blocks, block{
			Type: "context",
			Text: &text{Type: "mrkdwn", Text: "_Source: " + nt.Source + "_"},
		})
	}
	return blocks
}

// Send posts the notification to the webhook.
func (n *Notifier) Send(ctx context.Context, nt notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{"blocks": buildBlocks(nt)})
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

func levelTag(level string) string {
	switch level {
	case "success":
		return "[OK]"
	case "error":
		return "[ERROR]"
	case "warning":
		return "[WARN]"
	default:
		return "[INFO]"
	}
}
