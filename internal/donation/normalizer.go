// Package donation turns the payload of a channel publication into the
// canonical donation event, whatever envelope nesting the server used.
package donation

import (
	"fmt"

	"github.com/Fo4Ik-git/StreamPlayer/internal/jsonutil"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

// MaxExpectedDepth is the deepest "data" nesting seen in practice. Deeper
// envelopes are still unwrapped but reported.
const MaxExpectedDepth = 2

// maxDepth stops descent through pathological payloads.
const maxDepth = 32

// Drop reasons.
const (
	ReasonConnectionInfo = "connection_info"
	ReasonNotDonation    = "not_donation"
	ReasonEmpty          = "empty"
	ReasonPanic          = "panic"
)

var donationKeys = []string{"username", "amount", "currency", "message", "id"}

// Outcome describes what Normalize did with a payload.
type Outcome struct {
	// Forwarded is true when the returned event should reach listeners.
	Forwarded bool
	// Reason is set when the payload was dropped.
	Reason string
	// Detail explains the reason for logs.
	Detail string
	// Depth is the number of "data" levels unwrapped.
	Depth int
}

// Unexpected reports whether the nesting was deeper than MaxExpectedDepth.
func (o Outcome) Unexpected() bool {
	return o.Depth > MaxExpectedDepth
}

// Normalize maps a publication result onto a DonationEvent. Missing or
// mistyped fields default to their zero value. It never panics.
func Normalize(obj map[string]any) (ev model.DonationEvent, out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			ev = model.DonationEvent{}
			out = Outcome{Reason: ReasonPanic, Detail: fmt.Sprint(r), Depth: out.Depth}
		}
	}()

	if len(obj) == 0 {
		return ev, Outcome{Reason: ReasonEmpty, Detail: "empty payload"}
	}

	cur := obj
	depth := 0
	for depth < maxDepth {
		if isConnectionInfo(cur) {
			return ev, Outcome{Reason: ReasonConnectionInfo, Detail: "connection info message", Depth: depth}
		}
		inner, ok := jsonutil.MapFromMap(cur, "data")
		if !ok {
			break
		}
		cur = inner
		depth++
	}
	if isConnectionInfo(cur) {
		return ev, Outcome{Reason: ReasonConnectionInfo, Detail: "connection info message", Depth: depth}
	}

	if !jsonutil.HasAnyKey(cur, donationKeys...) {
		return ev, Outcome{Reason: ReasonNotDonation, Detail: fmt.Sprintf("object at depth %d has none of %v", depth, donationKeys), Depth: depth}
	}

	ev.Username = jsonutil.StringFromMap(cur, "username")
	if amount, ok := jsonutil.DecimalFromAny(cur["amount"]); ok {
		ev.Amount = amount
	}
	ev.Currency = jsonutil.StringFromMap(cur, "currency")
	ev.Message = jsonutil.StringFromMap(cur, "message")
	ev.ExternalID = jsonutil.StringFromMap(cur, "id")
	if created, ok := jsonutil.TimeFromAny(cur["date_created"]); ok {
		ev.CreatedAt = created
	} else if created, ok := jsonutil.TimeFromAny(cur["created_at"]); ok {
		ev.CreatedAt = created
	}

	return ev, Outcome{Forwarded: true, Depth: depth}
}

func isConnectionInfo(obj map[string]any) bool {
	info, ok := jsonutil.MapFromMap(obj, "info")
	if !ok {
		return false
	}
	_, ok = info["user"]
	return ok
}
