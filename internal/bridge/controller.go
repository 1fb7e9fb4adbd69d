// Package bridge owns the DonationAlerts real-time connection: credentials,
// identity, the live socket and its handshake, reconnect policy, and the
// listeners that receive status changes and donations.
//
// All mutable state belongs to one worker goroutine started by Run. Public
// methods either read atomics or submit a command to the worker and wait for
// its reply.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Fo4Ik-git/StreamPlayer/internal/centrifugo"
	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
	"github.com/Fo4Ik-git/StreamPlayer/internal/donation"
	"github.com/Fo4Ik-git/StreamPlayer/internal/handshake"
	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/metrics"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
	"github.com/Fo4Ik-git/StreamPlayer/internal/transport"
)

// ErrNotRunning is returned when a command is submitted after Run returned.
var ErrNotRunning = errors.New("bridge worker is not running")

// API is the DonationAlerts HTTP side channel.
type API interface {
	FetchUserIdentity(ctx context.Context, accessToken string) (model.Identity, error)
	SubscribeToken(ctx context.Context, accessToken, client, channel string) (string, error)
	ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (model.TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken, clientID, clientSecret string) (model.TokenSet, error)
}

// Socket is a live connection as seen by the controller.
type Socket interface {
	Send(ctx context.Context, data []byte) error
	Close() error
	Events() <-chan transport.Event
}

// DialFunc opens a Socket.
type DialFunc func(ctx context.Context, url string) (Socket, error)

// TransportDialer adapts a transport.Dialer to a DialFunc.
func TransportDialer(d *transport.Dialer) DialFunc {
	return func(ctx context.Context, url string) (Socket, error) {
		s, err := d.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Config holds controller policy.
type Config struct {
	SocketURL            string
	HandshakeTimeout     time.Duration
	ReconnectMinDelay    time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int // 0 means unbounded
	QueueSize            int
	Now                  func() time.Time
}

// ConnectResult is the outcome of ConnectWithToken, ExchangeCode and
// Reconnect.
type ConnectResult struct {
	Success  bool
	UserName string
	UserID   string
	Message  string
	// Tokens is set by ExchangeCode.
	Tokens *model.TokenSet
}

func failure(err error) ConnectResult {
	return ConnectResult{Success: false, Message: err.Error()}
}

type command func(ctx context.Context)

type session struct {
	id     uint64
	sock   Socket
	events <-chan transport.Event
	hs     *handshake.Handshake
}

// Controller is the bridge controller.
type Controller struct {
	api  API
	dial DialFunc
	cfg  Config
	log  *logger.Logger

	cmds      chan command
	done      chan struct{}
	started   atomic.Bool
	status    atomic.Int32
	identity  atomic.Pointer[model.Identity]
	listeners *dispatcher

	// Owned by the worker.
	creds          model.Credentials
	sess           *session
	sessionSeq     uint64
	backoff        Backoff
	reconnectTimer *time.Timer
	reconnectC     <-chan time.Time
	hsTimer        *time.Timer
	hsTimerC       <-chan time.Time
}

// New creates a Controller. Run must be called to start the worker.
func New(api API, dial DialFunc, cfg Config, log *logger.Logger) *Controller {
	if cfg.SocketURL == "" {
		cfg.SocketURL = constants.CentrifugoURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = constants.DefaultHandshakeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Controller{
		api:       api,
		dial:      dial,
		cfg:       cfg,
		log:       log,
		cmds:      make(chan command),
		done:      make(chan struct{}),
		listeners: newDispatcher(cfg.QueueSize, log),
		backoff:   NewBackoff(cfg.ReconnectMinDelay, cfg.ReconnectMaxDelay),
	}
	metrics.ConnectionStatus.Set(float64(model.StatusDisconnected))
	return c
}

// Run is the worker loop. It blocks until ctx is cancelled, then tears the
// connection down and flushes pending listener notifications.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("bridge controller already running")
	}
	defer close(c.done)

	go c.listeners.run()
	defer c.listeners.stop()

	for {
		var sockEvents <-chan transport.Event
		if c.sess != nil {
			sockEvents = c.sess.events
		}

		select {
		case <-ctx.Done():
			c.shutdown()
			return nil

		case cmd := <-c.cmds:
			cmd(ctx)

		case ev, ok := <-sockEvents:
			c.handleSocketEvent(ctx, ev, ok)

		case <-c.hsTimerC:
			c.hsTimerC = nil
			c.checkHandshake()

		case <-c.reconnectC:
			c.reconnectC = nil
			c.reconnectTimer = nil
			c.attemptReconnect(ctx)
		}
	}
}

// Status returns the current internal status.
func (c *Controller) Status() model.ConnectionStatus {
	return model.ConnectionStatus(c.status.Load())
}

// StatusUpdate returns the status as reported to the UI.
func (c *Controller) StatusUpdate() model.StatusUpdate {
	return c.Status().Update()
}

// Identity returns the identity of the current connection cycle.
func (c *Controller) Identity() (model.Identity, bool) {
	id := c.identity.Load()
	if id == nil {
		return model.Identity{}, false
	}
	return *id, true
}

// AddListener registers l and returns a function that removes it.
func (c *Controller) AddListener(l Listener) func() {
	return c.listeners.add(l)
}

// ConnectWithToken validates accessToken by fetching the user identity and,
// on success, replaces any existing connection with a new one. On failure
// the previous connection is left untouched.
func (c *Controller) ConnectWithToken(ctx context.Context, accessToken, refreshToken, clientID, clientSecret string) ConnectResult {
	creds := model.Credentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	return c.call(ctx, func(wctx context.Context) ConnectResult {
		return c.connect(ctx, wctx, creds)
	})
}

// ExchangeCode trades an OAuth code for tokens and connects with them.
func (c *Controller) ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) ConnectResult {
	return c.call(ctx, func(wctx context.Context) ConnectResult {
		tokens, err := c.api.ExchangeCode(ctx, code, clientID, clientSecret, redirectURI)
		if err != nil {
			c.log.Error("Code exchange failed", "error", err)
			return failure(err)
		}
		c.log.Info("Authorization code exchanged")

		res := c.connect(ctx, wctx, model.Credentials{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
		})
		res.Tokens = &tokens
		return res
	})
}

// Reconnect reconnects with the retained credentials.
func (c *Controller) Reconnect(ctx context.Context) ConnectResult {
	return c.call(ctx, func(wctx context.Context) ConnectResult {
		if c.creds.AccessToken == "" {
			return ConnectResult{Message: "not connected: no access token"}
		}
		return c.connect(ctx, wctx, c.creds)
	})
}

// Disconnect closes the connection and cancels any pending reconnect.
// Credentials are kept so Reconnect can resume.
func (c *Controller) Disconnect(ctx context.Context) error {
	reply := make(chan struct{})
	err := c.submit(ctx, func(context.Context) {
		c.cancelReconnect()
		c.backoff.Reset()
		if c.sess != nil {
			c.log.Info("Disconnecting")
		}
		c.teardown()
		c.identity.Store(nil)
		c.setStatus(model.StatusDisconnected)
		close(reply)
	})
	if err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) call(ctx context.Context, fn func(wctx context.Context) ConnectResult) ConnectResult {
	reply := make(chan ConnectResult, 1)
	if err := c.submit(ctx, func(wctx context.Context) { reply <- fn(wctx) }); err != nil {
		return failure(err)
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return failure(ctx.Err())
	}
}

func (c *Controller) submit(ctx context.Context, cmd command) error {
	select {
	case c.cmds <- cmd:
		return nil
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connect runs on the worker. HTTP calls use the caller's ctx so an
// abandoned request is cancelled; the socket lives under the worker's.
func (c *Controller) connect(ctx, wctx context.Context, creds model.Credentials) ConnectResult {
	identity, err := c.api.FetchUserIdentity(ctx, creds.AccessToken)
	if err != nil {
		c.log.Error("Failed to fetch user identity", "error", err)
		return failure(err)
	}

	c.creds = creds
	c.cancelReconnect()
	c.backoff.Reset()
	c.log.Info("Authenticated", "user", identity.UserName, "user_id", identity.UserID)

	c.startSession(wctx, identity)

	return ConnectResult{Success: true, UserName: identity.UserName, UserID: identity.UserID}
}

func (c *Controller) startSession(ctx context.Context, identity model.Identity) {
	c.teardown()
	c.identity.Store(&identity)
	c.setStatus(model.StatusConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	sock, err := c.dial(dialCtx, c.cfg.SocketURL)
	cancel()
	if err != nil {
		c.log.Error("Failed to open socket", "error", err)
		c.setStatus(model.StatusDisconnected)
		c.scheduleReconnect(err)
		return
	}

	c.sessionSeq++
	c.sess = &session{
		id:     c.sessionSeq,
		sock:   sock,
		events: sock.Events(),
		hs:     handshake.New(identity, sock.Send, c.fetchSubToken, c.cfg.HandshakeTimeout, handshake.WithClock(c.cfg.Now)),
	}
	c.log.Debug("Socket opened", "session", c.sessionSeq)
}

func (c *Controller) fetchSubToken(ctx context.Context, client, channel string) (string, error) {
	return c.api.SubscribeToken(ctx, c.creds.AccessToken, client, channel)
}

func (c *Controller) handleSocketEvent(ctx context.Context, ev transport.Event, ok bool) {
	if !ok {
		c.connectionLost(fmt.Errorf("%w: event stream ended", model.ErrNetwork))
		return
	}

	switch ev.Kind {
	case transport.EventOpen:
		c.setStatus(model.StatusAuthenticating)
		if err := c.sess.hs.Open(ctx); err != nil {
			c.handshakeFailed(ctx, err)
			return
		}
		c.armHandshakeTimer()

	case transport.EventMessage:
		for _, f := range centrifugo.DecodeBatch(ev.Data) {
			if c.sess == nil {
				return
			}
			c.handleFrame(ctx, f)
		}

	case transport.EventError:
		c.connectionLost(ev.Err)

	case transport.EventClose:
		c.connectionLost(fmt.Errorf("%w: socket closed by server (code %d: %s)", model.ErrNetwork, ev.Code, ev.Reason))
	}
}

func (c *Controller) handleFrame(ctx context.Context, f centrifugo.Frame) {
	metrics.FramesReceived.WithLabelValues(f.Kind.String()).Inc()

	switch f.Kind {
	case centrifugo.KindEmpty:
		c.log.Debug("Keepalive frame")

	case centrifugo.KindMalformed:
		c.log.Warn("Dropping malformed frame",
			"stage", c.sess.hs.Stage().String(), "error", f.Err, "raw", string(f.Raw))

	case centrifugo.KindReply:
		handled, err := c.sess.hs.HandleReply(ctx, f)
		if err != nil {
			c.handshakeFailed(ctx, err)
			return
		}
		if handled {
			c.armHandshakeTimer()
			if c.sess.hs.Subscribed() {
				c.onSubscribed(ctx)
			} else {
				c.setStatus(c.sess.hs.Stage().Status())
			}
			return
		}
		if _, ok := f.Result["data"]; ok {
			c.handlePublication(ctx, f.Result)
			return
		}
		c.log.Debug("Reply for unknown request", "id", f.ID, "raw", string(f.Raw))

	case centrifugo.KindPublish:
		c.handlePublication(ctx, f.Result)
	}
}

func (c *Controller) handlePublication(ctx context.Context, result map[string]any) {
	ev, out := donation.Normalize(result)
	if out.Unexpected() {
		c.log.Warn("Unexpected donation nesting depth", "depth", out.Depth)
	}
	if !out.Forwarded {
		metrics.DonationsDropped.WithLabelValues(out.Reason).Inc()
		if out.Reason == donation.ReasonConnectionInfo {
			c.log.Info("Received connection info message (ignoring)")
		} else {
			c.log.Warn("Dropping publication", "reason", out.Reason, "detail", out.Detail)
		}
		return
	}

	metrics.DonationsForwarded.Inc()
	c.log.Event(ctx, model.EventDonation, "New donation",
		"user", ev.Username, "amount", ev.Amount.String(), "currency", ev.Currency)
	c.listeners.publish(notification{donation: &ev})
}

func (c *Controller) onSubscribed(ctx context.Context) {
	c.stopHandshakeTimer()
	c.backoff.Reset()
	c.setStatus(model.StatusConnected)
	c.log.Event(ctx, model.EventConnected, "Subscribed to donation channel", "channel", c.sess.hs.Channel())
}

func (c *Controller) checkHandshake() {
	if c.sess == nil {
		return
	}
	if err := c.sess.hs.Expired(c.cfg.Now()); err != nil {
		c.handshakeFailed(context.Background(), err)
		return
	}
	c.armHandshakeTimer()
}

func (c *Controller) handshakeFailed(ctx context.Context, err error) {
	stage := handshake.FailedStage(err)
	metrics.HandshakeFailures.WithLabelValues(stage.String(), model.ErrorClass(err)).Inc()
	c.log.Event(ctx, model.EventHandshakeError, "Handshake failed",
		"stage", stage.String(), "class", model.ErrorClass(err), "error", err)

	c.teardown()
	c.setStatus(model.StatusError)
	c.scheduleReconnect(err)
}

func (c *Controller) connectionLost(err error) {
	c.log.Warn("Connection lost", "error", err)
	c.teardown()
	c.setStatus(model.StatusDisconnected)
	c.log.Event(context.Background(), model.EventDisconnected, "Disconnected from DonationAlerts")
	c.scheduleReconnect(err)
}

// scheduleReconnect arms the single reconnect timer.
func (c *Controller) scheduleReconnect(cause error) {
	if c.reconnectC != nil {
		return
	}
	if c.creds.AccessToken == "" {
		return
	}
	if limit := c.cfg.MaxReconnectAttempts; limit > 0 && c.backoff.Attempts() >= limit {
		c.log.Error("Giving up reconnecting", "attempts", c.backoff.Attempts(), "error", cause)
		c.setStatus(model.StatusError)
		return
	}

	delay := c.backoff.Next()
	c.reconnectTimer = time.NewTimer(delay)
	c.reconnectC = c.reconnectTimer.C
	metrics.ReconnectAttempts.Inc()
	c.log.Event(context.Background(), model.EventReconnect, "Reconnect scheduled",
		"in", delay, "attempt", c.backoff.Attempts())
}

func (c *Controller) cancelReconnect() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = nil
	c.reconnectC = nil
}

// attemptReconnect refetches the identity, since socket tokens are short
// lived, and opens a new session. A rejected access token is refreshed once.
func (c *Controller) attemptReconnect(ctx context.Context) {
	identity, err := c.api.FetchUserIdentity(ctx, c.creds.AccessToken)
	if errors.Is(err, model.ErrAuth) && c.creds.CanRefresh() {
		c.log.Info("Access token rejected, refreshing")
		tokens, rerr := c.api.RefreshToken(ctx, c.creds.RefreshToken, c.creds.ClientID, c.creds.ClientSecret)
		if rerr != nil {
			err = fmt.Errorf("refreshing access token: %w", rerr)
		} else {
			c.creds.AccessToken = tokens.AccessToken
			c.creds.RefreshToken = tokens.RefreshToken
			c.log.Info("Access token refreshed")
			identity, err = c.api.FetchUserIdentity(ctx, c.creds.AccessToken)
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if !model.Retryable(err) {
			c.log.Error("Reconnect failed, credentials rejected", "error", err)
			c.identity.Store(nil)
			c.setStatus(model.StatusError)
			return
		}
		c.log.Warn("Reconnect failed", "error", err)
		c.scheduleReconnect(err)
		return
	}

	c.startSession(ctx, identity)
}

func (c *Controller) armHandshakeTimer() {
	c.stopHandshakeTimer()
	if c.sess == nil {
		return
	}
	deadline, ok := c.sess.hs.NextDeadline()
	if !ok {
		return
	}
	wait := deadline.Sub(c.cfg.Now())
	if wait < 0 {
		wait = 0
	}
	c.hsTimer = time.NewTimer(wait)
	c.hsTimerC = c.hsTimer.C
}

func (c *Controller) stopHandshakeTimer() {
	if c.hsTimer != nil {
		c.hsTimer.Stop()
	}
	c.hsTimer = nil
	c.hsTimerC = nil
}

// teardown closes the current socket, if any. Events still queued on it are
// abandoned.
func (c *Controller) teardown() {
	c.stopHandshakeTimer()
	if c.sess == nil {
		return
	}
	if err := c.sess.sock.Close(); err != nil {
		c.log.Debug("Error closing socket", "error", err)
	}
	c.sess = nil
}

func (c *Controller) shutdown() {
	c.cancelReconnect()
	c.teardown()
	c.setStatus(model.StatusDisconnected)
}

// setStatus stores s and notifies listeners when the external status changes.
func (c *Controller) setStatus(s model.ConnectionStatus) {
	old := model.ConnectionStatus(c.status.Swap(int32(s)))
	if old == s {
		return
	}
	metrics.ConnectionStatus.Set(float64(s))
	c.log.Debug("Status changed", "from", old.String(), "to", s.String())

	if old.External() != s.External() {
		update := s.Update()
		c.listeners.publish(notification{status: &update})
	}
}
