// Package handshake drives the per-connection Centrifugo handshake:
// authenticate the socket, obtain a subscription token for the private
// donation channel over HTTP, then subscribe.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Fo4Ik-git/StreamPlayer/internal/centrifugo"
	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

// Stage is a handshake state.
type Stage int

const (
	StageIdle Stage = iota
	StageSocketOpen
	StageAuthSent
	StageAuthAcked
	StageSubTokenFetched
	StageSubscribeSent
	StageSubscribed
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageSocketOpen:
		return "socket_open"
	case StageAuthSent:
		return "auth_sent"
	case StageAuthAcked:
		return "auth_acked"
	case StageSubTokenFetched:
		return "sub_token_fetched"
	case StageSubscribeSent:
		return "subscribe_sent"
	case StageSubscribed:
		return "subscribed"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status maps the stage onto the bridge connection status.
func (s Stage) Status() model.ConnectionStatus {
	switch s {
	case StageIdle:
		return model.StatusConnecting
	case StageSocketOpen, StageAuthSent:
		return model.StatusAuthenticating
	case StageAuthAcked, StageSubTokenFetched, StageSubscribeSent:
		return model.StatusSubscribing
	case StageSubscribed:
		return model.StatusConnected
	default:
		return model.StatusError
	}
}

// RequestKind identifies an outstanding handshake request.
type RequestKind int

const (
	RequestAuth RequestKind = iota
	RequestSubscribe
)

func (k RequestKind) String() string {
	if k == RequestAuth {
		return "auth"
	}
	return "subscribe"
}

// Request is a client frame awaiting its reply.
type Request struct {
	ID     uint32
	Kind   RequestKind
	SentAt time.Time
}

// Error records the stage a handshake failed in. It unwraps to the
// model error class.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("handshake failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, or StageIdle if err is not
// a handshake error.
func FailedStage(err error) Stage {
	var he *Error
	if errors.As(err, &he) {
		return he.Stage
	}
	return StageIdle
}

// SendFunc writes one frame to the socket.
type SendFunc func(ctx context.Context, frame []byte) error

// TokenFetcher obtains a subscription token for channel on behalf of the
// Centrifugo client id.
type TokenFetcher func(ctx context.Context, client, channel string) (string, error)

// Option configures a Handshake.
type Option func(*Handshake)

// WithClock replaces time.Now. Requests are stamped with it right after
// their frame is written.
func WithClock(now func() time.Time) Option {
	return func(h *Handshake) {
		if now != nil {
			h.now = now
		}
	}
}

// Handshake is the state of one connection attempt. It is not safe for
// concurrent use; the bridge worker owns it.
type Handshake struct {
	identity model.Identity
	channel  string
	send     SendFunc
	fetch    TokenFetcher
	timeout  time.Duration
	now      func() time.Time

	stage   Stage
	pending map[uint32]Request
	client  string
	err     error
}

// New creates a handshake for identity. timeout bounds how long any request
// may stay unanswered.
func New(identity model.Identity, send SendFunc, fetch TokenFetcher, timeout time.Duration, opts ...Option) *Handshake {
	if timeout <= 0 {
		timeout = constants.DefaultHandshakeTimeout
	}
	h := &Handshake{
		identity: identity,
		channel:  constants.DonationChannel(identity.UserID),
		send:     send,
		fetch:    fetch,
		timeout:  timeout,
		now:      time.Now,
		stage:    StageIdle,
		pending:  make(map[uint32]Request, 2),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Stage returns the current stage.
func (h *Handshake) Stage() Stage { return h.stage }

// Channel returns the donation channel this handshake subscribes to.
func (h *Handshake) Channel() string { return h.channel }

// Client returns the server-assigned client id, empty before the auth reply.
func (h *Handshake) Client() string { return h.client }

// Err returns the failure, if any.
func (h *Handshake) Err() error { return h.err }

// Subscribed reports whether the handshake completed.
func (h *Handshake) Subscribed() bool { return h.stage == StageSubscribed }

// Pending returns the outstanding requests ordered by id.
func (h *Handshake) Pending() []Request {
	out := make([]Request, 0, len(h.pending))
	for _, r := range h.pending {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Open reacts to the socket opening by sending the auth frame.
func (h *Handshake) Open(ctx context.Context) error {
	if h.stage != StageIdle {
		return h.fail(fmt.Errorf("%w: socket opened twice", model.ErrProtocol))
	}
	h.stage = StageSocketOpen

	frame, err := centrifugo.AuthFrame(h.identity.SocketToken, constants.AuthRequestID)
	if err != nil {
		return h.fail(fmt.Errorf("%w: %w", model.ErrProtocol, err))
	}
	if err := h.send(ctx, frame); err != nil {
		return h.fail(err)
	}
	h.pending[constants.AuthRequestID] = Request{ID: constants.AuthRequestID, Kind: RequestAuth, SentAt: h.now()}
	h.stage = StageAuthSent
	return nil
}

// HandleReply consumes a reply frame. It returns false for replies that do
// not match an outstanding request; the caller treats those as ordinary
// frames.
func (h *Handshake) HandleReply(ctx context.Context, f centrifugo.Frame) (bool, error) {
	if f.Kind != centrifugo.KindReply {
		return false, nil
	}
	req, ok := h.pending[f.ID]
	if !ok {
		return false, nil
	}
	delete(h.pending, f.ID)

	switch req.Kind {
	case RequestAuth:
		return true, h.onAuthReply(ctx, f)
	default:
		return true, h.onSubscribeReply(f)
	}
}

func (h *Handshake) onAuthReply(ctx context.Context, f centrifugo.Frame) error {
	if f.Error != nil {
		return h.fail(fmt.Errorf("%w: auth rejected: %w", model.ErrAuth, f.Error))
	}
	client, _ := f.Result["client"].(string)
	if client == "" {
		return h.fail(fmt.Errorf("%w: auth reply has no client id", model.ErrProtocol))
	}
	h.client = client
	h.stage = StageAuthAcked

	token, err := h.fetch(ctx, client, h.channel)
	if err != nil {
		return h.fail(err)
	}
	if token == "" {
		return h.fail(fmt.Errorf("%w: empty subscription token for %s", model.ErrNotFound, h.channel))
	}
	h.stage = StageSubTokenFetched

	frame, err := centrifugo.SubscribeFrame(h.channel, token, constants.SubscribeRequestID)
	if err != nil {
		return h.fail(fmt.Errorf("%w: %w", model.ErrProtocol, err))
	}
	if err := h.send(ctx, frame); err != nil {
		return h.fail(err)
	}
	// Stamped after the send so the token fetch above is not charged.
	h.pending[constants.SubscribeRequestID] = Request{ID: constants.SubscribeRequestID, Kind: RequestSubscribe, SentAt: h.now()}
	h.stage = StageSubscribeSent
	return nil
}

func (h *Handshake) onSubscribeReply(f centrifugo.Frame) error {
	if f.Error != nil {
		return h.fail(fmt.Errorf("%w: subscribe rejected: %w", model.ErrProtocol, f.Error))
	}
	h.stage = StageSubscribed
	return nil
}

// Expired fails the handshake if any outstanding request is older than the
// timeout. It returns nil while the handshake is healthy.
func (h *Handshake) Expired(now time.Time) error {
	if h.stage == StageFailed {
		return nil
	}
	for _, r := range h.Pending() {
		if now.Sub(r.SentAt) >= h.timeout {
			return h.fail(fmt.Errorf("%w: no reply to %s request %d after %s", model.ErrHandshakeTimeout, r.Kind, r.ID, h.timeout))
		}
	}
	return nil
}

// NextDeadline returns when the oldest outstanding request expires.
func (h *Handshake) NextDeadline() (time.Time, bool) {
	var deadline time.Time
	found := false
	for _, r := range h.pending {
		d := r.SentAt.Add(h.timeout)
		if !found || d.Before(deadline) {
			deadline = d
			found = true
		}
	}
	return deadline, found
}

func (h *Handshake) fail(err error) error {
	herr := &Error{Stage: h.stage, Err: err}
	h.stage = StageFailed
	h.err = herr
	clear(h.pending)
	return herr
}
