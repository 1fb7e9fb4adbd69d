package model

import "errors"

// Error classes shared by the side channel, the handshake and the bridge.
// Concrete errors wrap one of these so callers can branch with errors.Is.
var (
	// ErrNetwork means an HTTP or socket endpoint was unreachable. Retryable.
	ErrNetwork = errors.New("network error")
	// ErrAuth means credentials were rejected or expired. Not retryable
	// without new credentials.
	ErrAuth = errors.New("authentication error")
	// ErrProtocol means a frame or response had an unexpected shape.
	ErrProtocol = errors.New("protocol error")
	// ErrHandshakeTimeout means a handshake request got no reply in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")
	// ErrNotFound means a required item, such as a channel token, was absent.
	ErrNotFound = errors.New("not found")
)

// ErrorClass returns a short label for the class of err, for logs and
// metrics labels.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrHandshakeTimeout):
		return "handshake_timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "unknown"
	}
}

// Retryable reports whether reconnecting may fix err without new credentials.
func Retryable(err error) bool {
	return !errors.Is(err, ErrAuth)
}
