// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesReceived counts inbound Centrifugo frames by decoded kind.
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamplayer_frames_received_total",
			Help: "Total number of WebSocket frames received, by kind",
		},
		[]string{"kind"}, // empty, reply, publish, malformed
	)

	// DonationsForwarded counts donations delivered to listeners.
	DonationsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamplayer_donations_forwarded_total",
		Help: "Total number of donations forwarded to listeners",
	})

	// DonationsDropped counts inbound payloads not forwarded, by reason.
	DonationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamplayer_donations_dropped_total",
			Help: "Total number of inbound payloads not forwarded as donations",
		},
		[]string{"reason"},
	)

	// HandshakeFailures counts failed handshakes by stage and error class.
	HandshakeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamplayer_handshake_failures_total",
			Help: "Total number of failed subscription handshakes",
		},
		[]string{"stage", "class"},
	)

	// ReconnectAttempts counts scheduled reconnect attempts.
	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamplayer_reconnect_attempts_total",
		Help: "Total number of scheduled reconnect attempts",
	})

	// ConnectionStatus is the internal status enum value.
	ConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamplayer_connection_status",
		Help: "Bridge connection status (0=disconnected, 1=connecting, 2=authenticating, 3=subscribing, 4=connected, 5=error)",
	})

	// ListenerEventsDropped counts listener events lost to a full queue.
	ListenerEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamplayer_listener_events_dropped_total",
		Help: "Total number of listener events dropped because the dispatch queue was full",
	})

	// APIRequests counts side-channel HTTP requests by endpoint and result.
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamplayer_api_requests_total",
			Help: "Total number of DonationAlerts API requests",
		},
		[]string{"endpoint", "result"}, // result: ok, auth, network, protocol, not_found, rejected
	)

	// CircuitBreakerState is the side-channel breaker state.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamplayer_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerTransitions counts breaker state changes.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamplayer_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// UIClients is the number of connected UI push clients.
	UIClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamplayer_ui_clients",
		Help: "Current number of UI WebSocket clients",
	})

	// UIMessagesDropped counts push messages dropped for slow UI clients.
	UIMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamplayer_ui_messages_dropped_total",
		Help: "Total number of UI push messages dropped for slow clients",
	})

	// TranscriptRequests counts transcript fetches by result.
	TranscriptRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamplayer_transcript_requests_total",
			Help: "Total number of transcript requests",
		},
		[]string{"result"},
	)

	// HTTPRequestDuration measures UI API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamplayer_http_request_duration_seconds",
			Help:    "UI API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
