package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
	"github.com/Fo4Ik-git/StreamPlayer/internal/transport"
)

type fakeSocket struct {
	mu     sync.Mutex
	sent   []string
	closed bool
	events chan transport.Event
}

func newFakeSocket() *fakeSocket {
	s := &fakeSocket{events: make(chan transport.Event, 32)}
	s.events <- transport.Event{Kind: transport.EventOpen}
	return s
}

func (s *fakeSocket) Send(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, string(data))
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) Events() <-chan transport.Event { return s.events }

func (s *fakeSocket) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *fakeSocket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) push(raw string) {
	s.events <- transport.Event{Kind: transport.EventMessage, Data: []byte(raw)}
}

type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	err     error
}

func (d *fakeDialer) Dial(context.Context, string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeSocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

func (d *fakeDialer) Socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sockets) {
		return nil
	}
	return d.sockets[i]
}

type fakeAPI struct {
	mu sync.Mutex

	identity    model.Identity
	identityErr error
	subToken    string
	subErr      error
	tokens      model.TokenSet
	exchangeErr error
	refreshErr  error
	onRefresh   func(a *fakeAPI)
	onSubscribe func()

	identityCalls int
	refreshCalls  int
	subCalls      []string
}

func (a *fakeAPI) FetchUserIdentity(_ context.Context, _ string) (model.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.identityCalls++
	if a.identityErr != nil {
		return model.Identity{}, a.identityErr
	}
	return a.identity, nil
}

func (a *fakeAPI) SubscribeToken(_ context.Context, accessToken, client, channel string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subCalls = append(a.subCalls, accessToken+" "+client+" "+channel)
	if a.onSubscribe != nil {
		a.onSubscribe()
	}
	return a.subToken, a.subErr
}

func (a *fakeAPI) ExchangeCode(context.Context, string, string, string, string) (model.TokenSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens, a.exchangeErr
}

func (a *fakeAPI) RefreshToken(context.Context, string, string, string) (model.TokenSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshCalls++
	if a.onRefresh != nil {
		a.onRefresh(a)
	}
	return a.tokens, a.refreshErr
}

func (a *fakeAPI) set(fn func(a *fakeAPI)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

func (a *fakeAPI) IdentityCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identityCalls
}

func (a *fakeAPI) RefreshCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshCalls
}

func (a *fakeAPI) SubCalls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.subCalls...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingListener struct {
	mu        sync.Mutex
	statuses  []string
	donations []model.DonationEvent
}

func (l *recordingListener) OnConnectionStatus(u model.StatusUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, u.Status)
}

func (l *recordingListener) OnNewDonation(e model.DonationEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.donations = append(l.donations, e)
}

func (l *recordingListener) Statuses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.statuses...)
}

func (l *recordingListener) Donations() []model.DonationEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.DonationEvent(nil), l.donations...)
}
