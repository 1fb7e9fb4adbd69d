package bridge

import (
	"sync"

	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/metrics"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

// DefaultQueueSize bounds the listener dispatch queue.
const DefaultQueueSize = 256

// Listener receives bridge notifications. Calls arrive in order on a single
// dispatch goroutine and must not block for long.
type Listener interface {
	OnConnectionStatus(update model.StatusUpdate)
	OnNewDonation(event model.DonationEvent)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Status   func(model.StatusUpdate)
	Donation func(model.DonationEvent)
}

func (f ListenerFuncs) OnConnectionStatus(u model.StatusUpdate) {
	if f.Status != nil {
		f.Status(u)
	}
}

func (f ListenerFuncs) OnNewDonation(e model.DonationEvent) {
	if f.Donation != nil {
		f.Donation(e)
	}
}

type notification struct {
	status   *model.StatusUpdate
	donation *model.DonationEvent
}

// dispatcher fans notifications out to listeners through a bounded queue so
// the worker never waits on a listener.
type dispatcher struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64

	queue chan notification
	done  chan struct{}
	log   *logger.Logger
}

func newDispatcher(size int, log *logger.Logger) *dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &dispatcher{
		listeners: make(map[uint64]Listener),
		queue:     make(chan notification, size),
		done:      make(chan struct{}),
		log:       log,
	}
}

func (d *dispatcher) add(l Listener) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = l
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

func (d *dispatcher) count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

// publish enqueues n without blocking. Only the worker calls it.
func (d *dispatcher) publish(n notification) {
	if d.count() == 0 {
		switch {
		case n.status != nil:
			d.log.Debug("No listener for status update", "status", n.status.Status)
		case n.donation != nil:
			d.log.Warn("No listener for donation", "donation", n.donation.String())
		}
		return
	}

	select {
	case d.queue <- n:
	default:
		metrics.ListenerEventsDropped.Inc()
		d.log.Warn("Listener queue full, dropping notification")
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		d.deliver(n)
	}
}

// stop drains queued notifications and waits for the dispatch goroutine.
func (d *dispatcher) stop() {
	close(d.queue)
	<-d.done
}

func (d *dispatcher) deliver(n notification) {
	d.mu.RLock()
	snapshot := make([]Listener, 0, len(d.listeners))
	for _, l := range d.listeners {
		snapshot = append(snapshot, l)
	}
	d.mu.RUnlock()

	for _, l := range snapshot {
		d.call(l, n)
	}
}

func (d *dispatcher) call(l Listener, n notification) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Listener panicked", "panic", r)
		}
	}()
	switch {
	case n.status != nil:
		l.OnConnectionStatus(*n.status)
	case n.donation != nil:
		l.OnNewDonation(*n.donation)
	}
}
