// Package transport owns the WebSocket connection to the real-time endpoint.
// It delivers frames in arrival order and keeps the connection alive with
// native WebSocket pings. It knows nothing about the protocol on top.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

// EventKind identifies a socket event.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is delivered on Socket.Events. Data is set for EventMessage, Err for
// EventError, Code and Reason for EventClose.
type Event struct {
	Kind   EventKind
	Data   []byte
	Err    error
	Code   int
	Reason string
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Kind == EventError || e.Kind == EventClose
}

// Options configures dialed sockets. Zero values take the package defaults.
type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	ReadLimit    int64
	HTTPClient   *http.Client
}

func (o *Options) applyDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = constants.DefaultPingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = constants.DefaultPongTimeout
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = constants.SocketReadLimit
	}
}

// Dialer opens Sockets.
type Dialer struct {
	opts Options
	log  *logger.Logger
}

// NewDialer creates a Dialer with the given options.
func NewDialer(opts Options, log *logger.Logger) *Dialer {
	opts.applyDefaults()
	return &Dialer{opts: opts, log: log}
}

// Dial connects to url. The returned Socket has already queued EventOpen.
// Dial errors wrap model.ErrNetwork.
func (d *Dialer) Dial(ctx context.Context, url string) (*Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: d.opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", model.ErrNetwork, url, err)
	}

	conn.SetReadLimit(d.opts.ReadLimit)

	s := &Socket{
		conn:    conn,
		opts:    d.opts,
		log:     d.log,
		events:  make(chan Event, 64),
		closeCh: make(chan struct{}),
		inbox:   newInbox(),
	}

	s.events <- Event{Kind: EventOpen}
	go s.run()

	return s, nil
}

// Socket is one live WebSocket connection. Events are delivered in order on
// a single channel: EventOpen first, then messages, then exactly one
// EventError or EventClose, after which the channel is closed.
type Socket struct {
	conn *websocket.Conn
	opts Options
	log  *logger.Logger

	events chan Event
	inbox  *inbox

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Events returns the ordered event channel.
func (s *Socket) Events() <-chan Event {
	return s.events
}

// Send writes one text frame.
func (s *Socket) Send(ctx context.Context, data []byte) error {
	select {
	case <-s.closeCh:
		return fmt.Errorf("%w: socket closed", model.ErrNetwork)
	default:
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: writing frame: %w", model.ErrNetwork, err)
	}
	return nil
}

// Close starts a normal closure. It is idempotent and does not block; the
// event channel is closed once the connection is torn down.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
	return nil
}

func (s *Socket) closing() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

func (s *Socket) run() {
	defer close(s.events)

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return s.readLoop(ctx) })
	g.Go(func() error { return s.deliverLoop(ctx) })
	g.Go(func() error { return s.pingLoop(ctx) })
	g.Go(func() error {
		select {
		case <-s.closeCh:
			// The read loop receives the peer's close reply and returns.
			_ = s.conn.Close(websocket.StatusNormalClosure, "client closing")
			return errClosedLocally
		case <-ctx.Done():
			return nil
		}
	})

	err := g.Wait()
	_ = s.conn.CloseNow()

	s.emitTerminal(err)
}

var errClosedLocally = errors.New("socket closed by client")

func (s *Socket) emitTerminal(err error) {
	if s.closing() {
		ev := Event{Kind: EventClose, Code: int(websocket.StatusNormalClosure), Reason: errClosedLocally.Error()}
		select {
		case s.events <- ev:
		default:
		}
		return
	}

	var ev Event
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		ev = Event{Kind: EventClose, Code: int(ce.Code), Reason: ce.Reason}
	} else {
		ev = Event{Kind: EventError, Err: err}
	}

	select {
	case s.events <- ev:
	case <-s.closeCh:
	}
}

func (s *Socket) readLoop(ctx context.Context) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				return ce
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: reading frame: %w", model.ErrNetwork, err)
		}

		// Pongs are only seen while a read is pending, so the reader never
		// waits on the consumer.
		if !s.inbox.push(data) {
			return fmt.Errorf("%w: %d frames waiting on a stalled consumer", model.ErrNetwork, maxPendingFrames)
		}
	}
}

// deliverLoop forwards queued frames to the event channel in arrival order.
// Frames read before the connection ended are still delivered.
func (s *Socket) deliverLoop(ctx context.Context) error {
	for {
		done := false
		select {
		case <-s.inbox.ready:
		case <-ctx.Done():
			done = true
		}
		for _, data := range s.inbox.take() {
			select {
			case s.events <- Event{Kind: EventMessage, Data: data}:
			case <-s.closeCh:
				return errClosedLocally
			}
		}
		if done {
			return nil
		}
	}
}

func (s *Socket) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.opts.PongTimeout)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if s.log != nil {
					s.log.Warn("No pong received, dropping connection", "timeout", s.opts.PongTimeout, "error", err)
				}
				return fmt.Errorf("%w: pong not received within %s: %w", model.ErrNetwork, s.opts.PongTimeout, err)
			}
		}
	}
}

// maxPendingFrames bounds frames read but not yet taken by the consumer.
const maxPendingFrames = 4096

// inbox is the queue between the reader and the event channel.
type inbox struct {
	mu     sync.Mutex
	frames [][]byte
	ready  chan struct{}
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

func (in *inbox) push(data []byte) bool {
	in.mu.Lock()
	if len(in.frames) >= maxPendingFrames {
		in.mu.Unlock()
		return false
	}
	in.frames = append(in.frames, data)
	in.mu.Unlock()

	select {
	case in.ready <- struct{}{}:
	default:
	}
	return true
}

func (in *inbox) take() [][]byte {
	in.mu.Lock()
	defer in.mu.Unlock()
	frames := in.frames
	in.frames = nil
	return frames
}
