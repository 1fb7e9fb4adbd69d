package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/metrics"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

// Push event names, matching the UI callback names.
const (
	EventConnectionStatus = "onConnectionStatus"
	EventNewDonation      = "onNewDonation"
)

const (
	clientBuffer = 64
	writeTimeout = 10 * time.Second
)

// Message is one push frame.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type client struct {
	id   string
	send chan []byte
}

// Hub fans bridge callbacks out to every connected UI client. It implements
// bridge.Listener. A client that falls behind loses messages rather than
// slowing the others.
type Hub struct {
	log     *logger.Logger
	origins []string
	status  func() model.StatusUpdate

	mu      sync.RWMutex
	clients map[string]*client
	closed  chan struct{}
	once    sync.Once
}

// NewHub creates a Hub. origins are extra Origin patterns accepted besides
// same-origin requests. status, when set, is sent to each client on connect.
func NewHub(origins []string, status func() model.StatusUpdate, log *logger.Logger) *Hub {
	return &Hub{
		log:     log,
		origins: origins,
		status:  status,
		clients: make(map[string]*client),
		closed:  make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and pumps messages until the client leaves
// or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn("UI WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	c := &client{id: uuid.NewString(), send: make(chan []byte, clientBuffer)}
	if h.status != nil {
		if msg, err := encode(EventConnectionStatus, h.status()); err == nil {
			c.send <- msg
		}
	}
	if !h.add(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down") //nolint:errcheck
		return
	}
	defer h.remove(c)

	// The UI never sends anything; CloseRead handles control frames and
	// cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closed:
			conn.Close(websocket.StatusGoingAway, "server shutting down") //nolint:errcheck
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				h.log.Debug("UI client write failed", "client", c.id, "error", err)
				return
			}
		}
	}
}

// OnConnectionStatus pushes a status change.
func (h *Hub) OnConnectionStatus(update model.StatusUpdate) {
	h.Broadcast(EventConnectionStatus, update)
}

// OnNewDonation pushes a donation.
func (h *Hub) OnNewDonation(event model.DonationEvent) {
	h.Broadcast(EventNewDonation, event)
}

// Broadcast sends event to every client without blocking.
func (h *Hub) Broadcast(event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		h.log.Error("Failed to encode push message", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		h.log.Debug("No UI clients connected", "event", event)
		return
	}
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			metrics.UIMessagesDropped.Inc()
			h.log.Warn("UI client too slow, dropping message", "client", c.id, "event", event)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		close(h.closed)
		h.mu.Unlock()
	})
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.closed:
		return false
	default:
	}
	h.clients[c.id] = c
	metrics.UIClients.Set(float64(len(h.clients)))
	h.log.Info("UI client connected", "client", c.id, "total", len(h.clients))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
	metrics.UIClients.Set(float64(len(h.clients)))
	h.log.Info("UI client disconnected", "client", c.id, "total", len(h.clients))
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(Message{Event: event, Data: data})
}
