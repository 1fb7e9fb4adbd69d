package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

// Discord embed colors.
const (
	colorDonation = 0xF59E0B
	colorError    = 0xEF4444
	colorInfo     = 0x3B82F6
)

// Discord sends notifications via a Discord webhook.
type Discord struct {
	baseNotifier
	webhookURL string
	httpClient *http.Client
}

// Send posts an embed message to the configured Discord webhook.
func (d *Discord) Send(ctx context.Context, n Notification) error {
	embed := map[string]any{
		"title":       n.Title,
		"description": n.Message,
		"color":       embedColor(n.Event),
	}
	if n.Donation != nil {
		embed["fields"] = donationFields(*n.Donation)
		if !n.Donation.CreatedAt.IsZero() {
			embed["timestamp"] = n.Donation.CreatedAt.UTC().Format(time.RFC3339)
		}
	}

	payload := map[string]any{
		"username": "StreamPlayer",
		"embeds":   []map[string]any{embed},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord: unexpected status %d", resp.StatusCode)
	}

	return nil
}

func embedColor(event model.Event) int {
	switch event {
	case model.EventDonation:
		return colorDonation
	case model.EventHandshakeError, model.EventDisconnected:
		return colorError
	default:
		return colorInfo
	}
}

func donationFields(e model.DonationEvent) []map[string]any {
	name := e.Username
	if name == "" {
		name = "Anonymous"
	}
	return []map[string]any{
		{"name": "From", "value": name, "inline": true},
		{"name": "Amount", "value": e.Amount.String() + " " + e.Currency, "inline": true},
	}
}
