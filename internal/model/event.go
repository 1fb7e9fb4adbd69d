package model

import "strings"

// Event represents a bridge event type for notification filtering and logging.
type Event string

// All supported bridge events.
const (
	EventDonation       Event = "DONATION"
	EventConnected      Event = "CONNECTED"
	EventDisconnected   Event = "DISCONNECTED"
	EventReconnect      Event = "RECONNECT"
	EventHandshakeError Event = "HANDSHAKE_ERROR"
	EventTest           Event = "TEST"
)

// AllEvents returns a slice of all defined events.
func AllEvents() []Event {
	return []Event{
		EventDonation,
		EventConnected,
		EventDisconnected,
		EventReconnect,
		EventHandshakeError,
		EventTest,
	}
}

// ParseEvent converts a string to an Event, returning "" if unknown.
func ParseEvent(s string) Event {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for _, e := range AllEvents() {
		if string(e) == upper {
			return e
		}
	}
	return ""
}

// String returns the string representation of an Event.
func (e Event) String() string {
	return string(e)
}
