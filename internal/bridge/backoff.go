package bridge

import (
	"math"
	"time"

	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
)

// Backoff yields exponentially growing reconnect delays between Min and Max.
type Backoff struct {
	Min time.Duration
	Max time.Duration

	attempts int
}

// NewBackoff returns a Backoff starting at minDelay and capped at maxDelay.
// Non-positive bounds take the package defaults. Positive bounds are used
// as given; the one second floor for configured delays lives in config.
func NewBackoff(minDelay, maxDelay time.Duration) Backoff {
	if minDelay <= 0 {
		minDelay = constants.DefaultReconnectMinDelay
	}
	if maxDelay <= 0 {
		maxDelay = constants.DefaultReconnectMaxDelay
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return Backoff{Min: minDelay, Max: maxDelay}
}

// Next returns the delay before the next attempt and counts the attempt.
func (b *Backoff) Next() time.Duration {
	delay := time.Duration(math.Min(
		float64(b.Min)*math.Pow(2, float64(b.attempts)),
		float64(b.Max),
	))
	b.attempts++
	return delay
}

// Attempts returns how many delays were handed out since the last Reset.
func (b *Backoff) Attempts() int { return b.attempts }

// Reset starts over from Min.
func (b *Backoff) Reset() { b.attempts = 0 }
