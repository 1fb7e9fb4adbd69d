// Package constants defines DonationAlerts endpoints, Centrifugo protocol
// identifiers, YouTube caption endpoints, and default timeout/interval values
// used throughout the bridge.
package constants

import "time"

const (
	// DonationAlertsURL is the base DonationAlerts web URL.
	DonationAlertsURL = "https://www.donationalerts.com"
	// TokenPath is the OAuth2 token endpoint (code exchange and refresh).
	TokenPath = "/oauth/token"
	// UserOAuthPath returns the user's id, name and socket connection token.
	UserOAuthPath = "/api/v1/user/oauth"
	// CentrifugeSubscribePath issues channel subscription tokens.
	CentrifugeSubscribePath = "/api/v1/centrifuge/subscribe"
	// CentrifugoURL is the DonationAlerts Centrifugo WebSocket endpoint.
	CentrifugoURL = "wss://centrifugo.donationalerts.com/connection/websocket"
)

// DefaultRedirectURI is used when the UI does not supply one.
const DefaultRedirectURI = "http://localhost:8080"

// RefreshScopes are the OAuth scopes requested when refreshing an access token.
const RefreshScopes = "oauth-donation-subscribe oauth-user-show oauth-custom_alert-store oauth-donation-index"

// DonationChannelPrefix is prepended to the user id to build the private
// donation channel name. The result must match the server's name exactly.
const DonationChannelPrefix = "$alerts:donation_"

// DonationChannel returns the private donation channel for a user.
func DonationChannel(userID string) string {
	return DonationChannelPrefix + userID
}

const (
	// AuthRequestID is the request id of the connection-level auth frame.
	AuthRequestID uint32 = 1
	// SubscribeRequestID is the request id of the channel subscribe frame.
	SubscribeRequestID uint32 = 2
	// MethodSubscribe is the Centrifugo method number for subscribe.
	MethodSubscribe = 1
)

const (
	// YouTubeURL is the base YouTube web URL used by the transcript fetcher.
	YouTubeURL = "https://www.youtube.com"
	// DefaultUserAgent is sent with transcript requests.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// DefaultTranscriptLanguages is the caption language preference order.
var DefaultTranscriptLanguages = []string{"ru", "en"}

const (
	// DefaultHTTPTimeout is the timeout for side-channel HTTP requests.
	DefaultHTTPTimeout = 10 * time.Second
	// TokenExchangeTimeout is the timeout for the OAuth token endpoint.
	TokenExchangeTimeout = 15 * time.Second
	// DefaultPingInterval is the interval between WebSocket pings.
	DefaultPingInterval = 25 * time.Second
	// DefaultPongTimeout is how long to wait for a pong before giving up.
	DefaultPongTimeout = 10 * time.Second
	// DefaultHandshakeTimeout bounds how long a handshake request may stay
	// unanswered.
	DefaultHandshakeTimeout = 10 * time.Second
	// DefaultReconnectMinDelay is the backoff floor between reconnect attempts.
	DefaultReconnectMinDelay = time.Second
	// DefaultReconnectMaxDelay caps the reconnect backoff.
	DefaultReconnectMaxDelay = 60 * time.Second
	// DefaultGracefulShutdownTimeout is the HTTP server shutdown bound.
	DefaultGracefulShutdownTimeout = 10 * time.Second
	// SocketReadLimit is the maximum inbound WebSocket frame size.
	SocketReadLimit = 128 << 10
)
