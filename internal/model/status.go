package model

// ConnectionStatus is the bridge's authoritative connection state. Only the
// bridge controller's worker transitions it.
type ConnectionStatus int32

// Connection states, in handshake order.
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusAuthenticating
	StatusSubscribing
	StatusConnected
	StatusError
)

// External status strings reported to the UI.
const (
	ExternalDisconnected = "disconnected"
	ExternalConnecting   = "connecting"
	ExternalConnected    = "connected"
	ExternalError        = "error"
)

// String returns the internal name of the status.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusAuthenticating:
		return "authenticating"
	case StatusSubscribing:
		return "subscribing"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// External collapses the handshake sub-states into "connecting" for
// consumers outside the bridge.
func (s ConnectionStatus) External() string {
	switch s {
	case StatusConnecting, StatusAuthenticating, StatusSubscribing:
		return ExternalConnecting
	case StatusConnected:
		return ExternalConnected
	case StatusError:
		return ExternalError
	default:
		return ExternalDisconnected
	}
}

// StatusUpdate is the payload of the onConnectionStatus UI callback.
type StatusUpdate struct {
	Status string `json:"status"`
}

// Update builds the UI payload for s.
func (s ConnectionStatus) Update() StatusUpdate {
	return StatusUpdate{Status: s.External()}
}
