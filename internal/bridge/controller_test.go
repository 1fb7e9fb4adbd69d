package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var testIdentity = model.Identity{UserID: "42", UserName: "Streamer", SocketToken: "sock"}

type harness struct {
	ctrl     *Controller
	api      *fakeAPI
	dialer   *fakeDialer
	listener *recordingListener
}

func start(t *testing.T, cfg Config) *harness {
	t.Helper()
	api := &fakeAPI{identity: testIdentity, subToken: "sub-token"}
	dialer := &fakeDialer{}
	ctrl := New(api, dialer.Dial, cfg, logger.Nop())
	listener := &recordingListener{}
	ctrl.AddListener(listener)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{ctrl: ctrl, api: api, dialer: dialer, listener: listener}
}

func defaultConfig() Config {
	return Config{
		HandshakeTimeout:  time.Second,
		ReconnectMinDelay: 10 * time.Millisecond,
		ReconnectMaxDelay: 40 * time.Millisecond,
	}
}

func (h *harness) connect(t *testing.T) *fakeSocket {
	t.Helper()
	res := h.ctrl.ConnectWithToken(context.Background(), "at", "rt", "id", "secret")
	require.True(t, res.Success, res.Message)
	require.Equal(t, "Streamer", res.UserName)
	require.Equal(t, 1, h.dialer.Count())
	return h.dialer.Socket(0)
}

// subscribe drives the handshake on sock to completion.
func (h *harness) subscribe(t *testing.T, sock *fakeSocket) {
	t.Helper()
	require.Eventually(t, func() bool { return len(sock.Sent()) == 1 }, waitFor, tick)
	sock.push(`{"id":1,"result":{"client":"client-1"}}`)
	require.Eventually(t, func() bool { return len(sock.Sent()) == 2 }, waitFor, tick)
	sock.push(`{"id":2,"result":{}}`)
	require.Eventually(t, func() bool { return h.ctrl.Status() == model.StatusConnected }, waitFor, tick)
}

func TestConnectAndSubscribe(t *testing.T) {
	h := start(t, defaultConfig())
	sock := h.connect(t)

	require.Eventually(t, func() bool { return len(sock.Sent()) == 1 }, waitFor, tick)
	assert.JSONEq(t, `{"params":{"token":"sock"},"id":1}`, sock.Sent()[0])
	assert.Equal(t, model.StatusAuthenticating, h.ctrl.Status())
	assert.Equal(t, "connecting", h.ctrl.StatusUpdate().Status)

	sock.push(`{"id":1,"result":{"client":"client-1"}}`)
	require.Eventually(t, func() bool { return len(sock.Sent()) == 2 }, waitFor, tick)
	assert.JSONEq(t,
		`{"params":{"channel":"$alerts:donation_42","token":"sub-token"},"method":1,"id":2}`,
		sock.Sent()[1])
	assert.Equal(t, []string{"at client-1 $alerts:donation_42"}, h.api.SubCalls())

	sock.push(`{"id":2,"result":{}}`)
	require.Eventually(t, func() bool { return h.ctrl.Status() == model.StatusConnected }, waitFor, tick)

	identity, ok := h.ctrl.Identity()
	require.True(t, ok)
	assert.Equal(t, testIdentity, identity)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"connecting", "connected"}, h.listener.Statuses())
	}, waitFor, tick)
}

func TestKeepaliveIsNoOp(t *testing.T) {
	h := start(t, defaultConfig())
	sock := h.connect(t)
	h.subscribe(t, sock)

	sock.push(`{}`)
	sock.push(``)
	// A donation after the keepalives proves they were consumed.
	sock.push(`{"result":{"channel":"$alerts:donation_42","data":{"data":{"username":"Bob","amount":5,"currency":"EUR"}}}}`)

	require.Eventually(t, func() bool { return len(h.listener.Donations()) == 1 }, waitFor, tick)
	assert.Len(t, sock.Sent(), 2)
	assert.Equal(t, model.StatusConnected, h.ctrl.Status())
	assert.Equal(t, []string{"connecting", "connected"}, h.listener.Statuses())
}

func TestDonationForwarded(t *testing.T) {
	h := start(t, defaultConfig())
	sock := h.connect(t)
	h.subscribe(t, sock)

	sock.push(`{"result":{"channel":"$alerts:donation_42","data":{"seq":1,"data":{"id":99,"username":"Bob","amount":"150.50","currency":"RUB","message":"hello","date_created":"2024-05-01 10:20:30"}}}}`)
	sock.push(`{"result":{"channel":"$alerts:donation_42","data":{"info":{"user":"42"}}}}`)
	sock.push(`not json at all`)
	sock.push(`{"result":{"data":{"username":"Alice"}}}`)

	require.Eventually(t, func() bool { return len(h.listener.Donations()) == 2 }, waitFor, tick)
	donations := h.listener.Donations()
	assert.Equal(t, "Bob", donations[0].Username)
	assert.Equal(t, "150.5", donations[0].Amount.String())
	assert.Equal(t, "RUB", donations[0].Currency)
	assert.Equal(t, "hello", donations[0].Message)
	assert.Equal(t, "99", donations[0].ExternalID)
	assert.Equal(t, "Alice", donations[1].Username)

	// A malformed frame never ends the connection.
	assert.Equal(t, model.StatusConnected, h.ctrl.Status())
	assert.False(t, sock.Closed())
}

func TestUnexpectedCloseSchedulesOneReconnect(t *testing.T) {
	cfg := defaultConfig()
	cfg.HandshakeTimeout = 5 * time.Second
	h := start(t, cfg)
	sock := h.connect(t)
	h.subscribe(t, sock)

	sock.events <- transportClose(1006, "abnormal")

	require.Eventually(t, func() bool { return h.dialer.Count() == 2 }, waitFor, tick)
	assert.True(t, sock.Closed())
	assert.Equal(t, 2, h.api.IdentityCalls(), "identity is refetched on reconnect")

	// Exactly one reconnect: nothing else is dialed while the new handshake runs.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, h.dialer.Count())

	second := h.dialer.Socket(1)
	h.subscribe(t, second)
	want := []string{"connecting", "connected", "disconnected", "connecting", "connected"}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, h.listener.Statuses())
	}, waitFor, tick)
}

func TestMissingSubTokenEndsInError(t *testing.T) {
	cfg := defaultConfig()
	cfg.ReconnectMinDelay = time.Hour
	cfg.ReconnectMaxDelay = time.Hour
	h := start(t, cfg)
	h.api.set(func(a *fakeAPI) { a.subToken = ""; a.subErr = fmt.Errorf("%w: no token", model.ErrNotFound) })

	sock := h.connect(t)
	require.Eventually(t, func() bool { return len(sock.Sent()) == 1 }, waitFor, tick)
	sock.push(`{"id":1,"result":{"client":"client-1"}}`)

	require.Eventually(t, func() bool { return h.ctrl.Status() == model.StatusError }, waitFor, tick)
	assert.Len(t, sock.Sent(), 1, "no subscribe frame without a token")
	assert.True(t, sock.Closed())
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"connecting", "error"}, h.listener.Statuses())
	}, waitFor, tick)
}

func TestHandshakeTimeout(t *testing.T) {
	cfg := defaultConfig()
	cfg.HandshakeTimeout = 30 * time.Millisecond
	cfg.ReconnectMinDelay = time.Hour
	cfg.ReconnectMaxDelay = time.Hour
	h := start(t, cfg)

	sock := h.connect(t)
	require.Eventually(t, func() bool { return h.ctrl.Status() == model.StatusError }, waitFor, tick)
	assert.True(t, sock.Closed())
	assert.Equal(t, 1, h.dialer.Count())
}

func TestSlowSubTokenFetchDoesNotExpireSubscribe(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := defaultConfig()
	cfg.Now = clk.Now
	cfg.ReconnectMinDelay = time.Hour
	cfg.ReconnectMaxDelay = time.Hour
	h := start(t, cfg)
	// The fetch outlasts the whole handshake timeout.
	h.api.set(func(a *fakeAPI) { a.onSubscribe = func() { clk.Advance(2 * cfg.HandshakeTimeout) } })

	sock := h.connect(t)
	require.Eventually(t, func() bool { return len(sock.Sent()) == 1 }, waitFor, tick)
	sock.push(`{"id":1,"result":{"client":"client-1"}}`)
	require.Eventually(t, func() bool { return len(sock.Sent()) == 2 }, waitFor, tick)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, model.StatusSubscribing, h.ctrl.Status())

	sock.push(`{"id":2,"result":{}}`)
	require.Eventually(t, func() bool { return h.ctrl.Status() == model.StatusConnected }, waitFor, tick)
	assert.False(t, sock.Closed())
}

func TestReplyWithDataIsDonation(t *testing.T) {
	h := start(t, defaultConfig())
	sock := h.connect(t)
	h.subscribe(t, sock)

	sock.push(`{"id":7,"result":{"channel":"$alerts:donation_42","data":{"data":{"id":5,"username":"Carol","amount":25,"currency":"EUR","message":"gg"}}}}`)

	require.Eventually(t, func() bool { return len(h.listener.Donations()) == 1 }, waitFor, tick)
	d := h.listener.Donations()[0]
	assert.Equal(t, "Carol", d.Username)
	assert.Equal(t, "25", d.Amount.String())
	assert.Equal(t, "5", d.ExternalID)
	assert.Equal(t, model.StatusConnected, h.ctrl.Status())
}

func TestUnknownReplyWithoutDataIgnored(t *testing.T) {
	h := start(t, defaultConfig())
	sock := h.connect(t)
	h.subscribe(t, sock)
	statuses := []string{"connecting", "connected"}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(statuses, h.listener.Statuses())
	}, waitFor, tick)

	sock.push(`{"id":9,"result":{"client":"other"}}`)
	// A later donation proves the reply was consumed before it.
	sock.push(`{"result":{"data":{"username":"Dan","amount":"1","currency":"USD"}}}`)

	require.Eventually(t, func() bool { return len(h.listener.Donations()) == 1 }, waitFor, tick)
	assert.Equal(t, "Dan", h.listener.Donations()[0].Username)
	assert.Equal(t, model.StatusConnected, h.ctrl.Status())
	assert.Equal(t, statuses, h.listener.Statuses())
	assert.Len(t, sock.Sent(), 2)
	assert.False(t, sock.Closed())
	assert.Equal(t, 1, h.dialer.Count())
}

func TestConnectFailureKeepsPreviousState(t *testing.T) {
	h := start(t, defaultConfig())
	sock := h.connect(t)
	h.subscribe(t, sock)

	h.api.set(func(a *fakeAPI) { a.identityErr = fmt.Errorf("%w: bad token", model.ErrAuth) })
	res := h.ctrl.ConnectWithToken(context.Background(), "bad", "", "id", "secret")

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "bad token")
	assert.Equal(t, model.StatusConnected, h.ctrl.Status())
	assert.False(t, sock.Closed())
	assert.Equal(t, 1, h.dialer.Count())
}

func TestConnectReplacesExistingSocket(t *testing.T) {
	h := start(t, defaultConfig())
	first := h.connect(t)
	h.subscribe(t, first)

	res := h.ctrl.ConnectWithToken(context.Background(), "at2", "rt2", "id", "secret")
	require.True(t, res.Success)
	assert.True(t, first.Closed())
	assert.Equal(t, 2, h.dialer.Count())
}

func TestAuthErrorOnReconnectRefreshesOnce(t *testing.T) {
	cfg := defaultConfig()
	cfg.ReconnectMinDelay = 10 * time.Millisecond
	h := start(t, cfg)
	sock := h.connect(t)
	h.subscribe(t, sock)

	h.api.set(func(a *fakeAPI) {
		a.identityErr = fmt.Errorf("%w: expired", model.ErrAuth)
		a.refreshErr = fmt.Errorf("%w: invalid refresh token", model.ErrAuth)
	})
	sock.events <- transportClose(1006, "")

	require.Eventually(t, func() bool { return h.ctrl.Status() == model.StatusError }, waitFor, tick)
	assert.Equal(t, 1, h.api.RefreshCalls())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.Count(), "no retry after credentials are rejected")
	assert.Equal(t, 1, h.api.RefreshCalls())
	_, ok := h.ctrl.Identity()
	assert.False(t, ok)
}

func TestRefreshedTokenIsUsedOnReconnect(t *testing.T) {
	h := start(t, defaultConfig())
	sock := h.connect(t)
	h.subscribe(t, sock)

	h.api.set(func(a *fakeAPI) {
		a.identityErr = fmt.Errorf("%w: expired", model.ErrAuth)
		a.tokens = model.TokenSet{AccessToken: "fresh", RefreshToken: "rt2"}
		a.onRefresh = func(a *fakeAPI) { a.identityErr = nil }
	})
	sock.events <- transportClose(1006, "")

	require.Eventually(t, func() bool { return h.api.RefreshCalls() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.dialer.Count() >= 2 }, waitFor, tick)
	second := h.dialer.Socket(1)
	require.Eventually(t, func() bool { return len(second.Sent()) == 1 }, waitFor, tick)
	second.push(`{"id":1,"result":{"client":"client-2"}}`)
	require.Eventually(t, func() bool { return len(h.api.SubCalls()) == 2 }, waitFor, tick)
	assert.Equal(t, "fresh client-2 $alerts:donation_42", h.api.SubCalls()[1])
}

func TestDisconnect(t *testing.T) {
	h := start(t, defaultConfig())
	sock := h.connect(t)
	h.subscribe(t, sock)

	require.NoError(t, h.ctrl.Disconnect(context.Background()))
	assert.True(t, sock.Closed())
	assert.Equal(t, model.StatusDisconnected, h.ctrl.Status())
	_, ok := h.ctrl.Identity()
	assert.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.Count(), "disconnect does not reconnect")

	res := h.ctrl.Reconnect(context.Background())
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 2, h.dialer.Count())
}

func TestReconnectWithoutCredentials(t *testing.T) {
	h := start(t, defaultConfig())
	res := h.ctrl.Reconnect(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, 0, h.dialer.Count())
}

func TestExchangeCode(t *testing.T) {
	h := start(t, defaultConfig())
	h.api.set(func(a *fakeAPI) { a.tokens = model.TokenSet{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600} })

	res := h.ctrl.ExchangeCode(context.Background(), "code", "id", "secret", "http://localhost:8080")
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Tokens)
	assert.Equal(t, "at", res.Tokens.AccessToken)
	assert.Equal(t, "Streamer", res.UserName)
	assert.Equal(t, 1, h.dialer.Count())
}

func TestExchangeCodeFailure(t *testing.T) {
	h := start(t, defaultConfig())
	h.api.set(func(a *fakeAPI) { a.exchangeErr = errors.New("invalid code") })

	res := h.ctrl.ExchangeCode(context.Background(), "code", "id", "secret", "http://localhost:8080")
	assert.False(t, res.Success)
	assert.Equal(t, "invalid code", res.Message)
	assert.Equal(t, 0, h.dialer.Count())
}

func TestDialFailureSchedulesReconnect(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxReconnectAttempts = 2
	h := start(t, cfg)
	h.dialer.err = fmt.Errorf("%w: refused", model.ErrNetwork)

	res := h.ctrl.ConnectWithToken(context.Background(), "at", "rt", "id", "secret")
	require.True(t, res.Success)

	// Initial attempt plus two retries, then give up.
	require.Eventually(t, func() bool { return h.ctrl.Status() == model.StatusError }, waitFor, tick)
	assert.Equal(t, 3, h.api.IdentityCalls())
}

func TestNoListenerIsNotFatal(t *testing.T) {
	api := &fakeAPI{identity: testIdentity, subToken: "sub-token"}
	dialer := &fakeDialer{}
	ctrl := New(api, dialer.Dial, defaultConfig(), logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	res := ctrl.ConnectWithToken(context.Background(), "at", "", "id", "secret")
	require.True(t, res.Success)
	sock := dialer.Socket(0)
	require.Eventually(t, func() bool { return len(sock.Sent()) == 1 }, waitFor, tick)
	sock.push(`{"result":{"data":{"username":"x","amount":1}}}`)
	sock.push(`{"id":1,"result":{"client":"c"}}`)
	sock.push(`{"id":2,"result":{}}`)
	require.Eventually(t, func() bool { return ctrl.Status() == model.StatusConnected }, waitFor, tick)
}

func TestCommandsAfterStopFail(t *testing.T) {
	ctrl := New(&fakeAPI{}, (&fakeDialer{}).Dial, defaultConfig(), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, ctrl.Run(ctx))

	res := ctrl.ConnectWithToken(context.Background(), "at", "", "", "")
	assert.False(t, res.Success)
	assert.ErrorIs(t, ctrl.Disconnect(context.Background()), ErrNotRunning)
	assert.Error(t, ctrl.Run(context.Background()))
}
