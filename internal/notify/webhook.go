package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

// Webhook sends notifications via a generic HTTP webhook.
type Webhook struct {
	baseNotifier
	url        string
	method     string
	httpClient *http.Client
}

type webhookPayload struct {
	Event    string               `json:"event"`
	Title    string               `json:"title"`
	Message  string               `json:"message"`
	Donation *model.DonationEvent `json:"donation,omitempty"`
}

// Send delivers a notification via the configured webhook endpoint.
// For POST requests, the payload is sent as JSON in the body.
// For GET requests, event and message are appended as query parameters.
func (w *Webhook) Send(ctx context.Context, n Notification) error {
	method := strings.ToUpper(w.method)

	var req *http.Request
	var err error

	switch method {
	case http.MethodGet:
		u, parseErr := url.Parse(w.url)
		if parseErr != nil {
			return fmt.Errorf("webhook: parse url: %w", parseErr)
		}
		q := u.Query()
		q.Set("event_name", string(n.Event))
		q.Set("title", n.Title)
		q.Set("message", n.Message)
		if d := n.Donation; d != nil {
			q.Set("username", d.Username)
			q.Set("amount", d.Amount.String())
			q.Set("currency", d.Currency)
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)

	case http.MethodPost:
		body, marshalErr := json.Marshal(webhookPayload{
			Event:    string(n.Event),
			Title:    n.Title,
			Message:  n.Message,
			Donation: n.Donation,
		})
		if marshalErr != nil {
			return fmt.Errorf("webhook: marshal payload: %w", marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}

	default:
		return fmt.Errorf("webhook: unsupported method %q (use GET or POST)", method)
	}

	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	return nil
}
