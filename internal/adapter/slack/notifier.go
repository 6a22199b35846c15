// Package slack delivers review alerts to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cfotel "github.com/Strob0t/MedForge/internal/adapter/otel"
	"github.com/Strob0t/MedForge/internal/port/notifier"
)

const providerName = "slack"

// Notifier posts Block Kit messages to a Slack webhook.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a Slack notifier with the given webhook URL.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: cfotel.HTTPClient(&http.Client{Timeout: 10 * time.Second}),
	}
}

func (n *Notifier) Name() string { return providerName }

type slackMessage struct {
	Text   string       `json:"text"` // fallback for push notifications
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (n *Notifier) Send(ctx context.Context, a notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}

	header := fmt.Sprintf("%s %s", levelTag(a.Level), a.Title)
	msg := slackMessage{
		Text: header,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: header}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: a.Message}},
		},
	}

	var ctxLines []slackText
	if a.ConsultationID != "" {
		ctxLines = append(ctxLines, slackText{Type: "mrkdwn", Text: fmt.Sprintf("Consultation `%s`", a.ConsultationID)})
	}
	if a.Link != "" {
		ctxLines = append(ctxLines, slackText{Type: "mrkdwn", Text: fmt.Sprintf("<%s|Open result>", a.Link)})
	}
	if a.Source != "" {
		ctxLines = append(ctxLines, slackText{Type: "mrkdwn", Text: fmt.Sprintf("_Source: %s_", a.Source)})
	}
	if len(ctxLines) > 0 {
		msg.Blocks = append(msg.Blocks, slackBlock{Type: "context", Elements: ctxLines})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func levelTag(level notifier.Level) string {
	switch level {
	case notifier.LevelCritical:
		return "[CRITICAL]"
	case notifier.LevelWarning:
		return "[REVIEW]"
	default:
		return "[INFO]"
	}
}
