package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DonationEvent is the canonical, envelope-independent representation of a
// donation forwarded to the UI. It is immutable once emitted.
type DonationEvent struct {
	Username   string
	Amount     decimal.Decimal
	Currency   string
	Message    string
	ExternalID string
	CreatedAt  time.Time
}

// donationWire is the JSON shape the UI consumes. Amount is written as a
// bare JSON number so the UI can compare it without parsing.
type donationWire struct {
	Username    string      `json:"username"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	Message     string      `json:"message"`
	ID          string      `json:"id"`
	DateCreated string      `json:"date_created,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (d DonationEvent) MarshalJSON() ([]byte, error) {
	w := donationWire{
		Username: d.Username,
		Amount:   json.Number(d.Amount.String()),
		Currency: d.Currency,
		Message:  d.Message,
		ID:       d.ExternalID,
	}
	if !d.CreatedAt.IsZero() {
		w.DateCreated = d.CreatedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DonationEvent) UnmarshalJSON(data []byte) error {
	var w donationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	amount := decimal.Zero
	if w.Amount != "" {
		parsed, err := decimal.NewFromString(w.Amount.String())
		if err != nil {
			return fmt.Errorf("parsing donation amount %q: %w", w.Amount, err)
		}
		amount = parsed
	}
	var created time.Time
	if w.DateCreated != "" {
		t, err := time.Parse(time.RFC3339, w.DateCreated)
		if err != nil {
			return fmt.Errorf("parsing donation date %q: %w", w.DateCreated, err)
		}
		created = t
	}
	*d = DonationEvent{
		Username:   w.Username,
		Amount:     amount,
		Currency:   w.Currency,
		Message:    w.Message,
		ExternalID: w.ID,
		CreatedAt:  created,
	}
	return nil
}

// String returns a short human-readable description of the donation.
func (d DonationEvent) String() string {
	name := d.Username
	if name == "" {
		name = "Anonymous"
	}
	return fmt.Sprintf("%s - %s %s", name, d.Amount.String(), d.Currency)
}
