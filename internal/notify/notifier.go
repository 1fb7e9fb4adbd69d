// Package notify forwards donations and connection events to Telegram,
// Discord and generic webhooks, filtered per provider by event kind.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Fo4Ik-git/StreamPlayer/internal/config"
	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

// defaultHTTPTimeout is the timeout for notification HTTP requests.
const defaultHTTPTimeout = 5 * time.Second

const defaultTitle = "StreamPlayer"

// Notification is one message to deliver.
type Notification struct {
	Event   model.Event
	Title   string
	Message string
	// Donation is set for EventDonation.
	Donation *model.DonationEvent
}

// Notifier is the interface that all notification providers must implement.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	Name() string
	IsEnabled() bool
	ShouldNotify(event model.Event) bool
}

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	telegramAPI string
}

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTelegramAPI overrides the Telegram Bot API base URL.
func WithTelegramAPI(base string) Option {
	return func(o *options) { o.telegramAPI = base }
}

// Dispatcher manages multiple notifiers and dispatches notifications to all
// enabled notifiers that match the event. It implements bridge.Listener.
type Dispatcher struct {
	notifiers []Notifier
	log       *logger.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from the notification configuration.
func NewDispatcher(cfg config.NotificationsConfig, log *logger.Logger, opts ...Option) *Dispatcher {
	o := options{telegramAPI: telegramAPI}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}

	d := &Dispatcher{log: log}

	if cfg.Telegram != nil && cfg.Telegram.Enabled {
		d.notifiers = append(d.notifiers, &Telegram{
			baseNotifier:        baseNotifier{name: "Telegram", enabled: true, events: parseEvents(cfg.Telegram.Events)},
			apiBase:             o.telegramAPI,
			token:               cfg.Telegram.Token,
			chatID:              cfg.Telegram.ChatID,
			disableNotification: cfg.Telegram.DisableNotification,
			httpClient:          o.httpClient,
		})
	}

	if cfg.Discord != nil && cfg.Discord.Enabled {
		d.notifiers = append(d.notifiers, &Discord{
			baseNotifier: baseNotifier{name: "Discord", enabled: true, events: parseEvents(cfg.Discord.Events)},
			webhookURL:   cfg.Discord.WebhookURL,
			httpClient:   o.httpClient,
		})
	}

	if cfg.Webhook != nil && cfg.Webhook.Enabled {
		method := cfg.Webhook.Method
		if method == "" {
			method = http.MethodPost
		}
		d.notifiers = append(d.notifiers, &Webhook{
			baseNotifier: baseNotifier{name: "Webhook", enabled: true, events: parseEvents(cfg.Webhook.Events)},
			url:          cfg.Webhook.Endpoint,
			method:       method,
			httpClient:   o.httpClient,
		})
	}

	return d
}

// Dispatch sends n to all enabled notifiers that match its event.
// Sends are non-blocking; each notifier runs in its own goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	if n.Title == "" {
		n.Title = defaultTitle
	}
	for _, notifier := range d.notifiers {
		if !notifier.IsEnabled() || !notifier.ShouldNotify(n.Event) {
			continue
		}
		d.wg.Add(1)
		go func(notifier Notifier) {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultHTTPTimeout)
			defer cancel()
			if err := notifier.Send(sendCtx, n); err != nil {
				d.log.Warn("notification send failed",
					"provider", notifier.Name(),
					"event", string(n.Event),
					"error", err,
				)
			}
		}(notifier)
	}
}

// Wait blocks until in-flight sends finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// OnNewDonation forwards a donation to the notifiers.
func (d *Dispatcher) OnNewDonation(event model.DonationEvent) {
	d.Dispatch(context.Background(), Notification{
		Event:    model.EventDonation,
		Title:    "New donation",
		Message:  donationText(event),
		Donation: &event,
	})
}

// OnConnectionStatus is a no-op; connection events reach the notifiers
// through the logger hook, which carries more detail.
func (d *Dispatcher) OnConnectionStatus(model.StatusUpdate) {}

// NotifyFunc returns a logger.NotifyFunc that dispatches logged events.
// Donations are skipped since they arrive through OnNewDonation.
func (d *Dispatcher) NotifyFunc() logger.NotifyFunc {
	return func(ctx context.Context, message string, event model.Event) {
		if event == model.EventDonation {
			return
		}
		d.Dispatch(ctx, Notification{Event: event, Message: message})
	}
}

// HasNotifiers reports whether any notifiers are configured.
func (d *Dispatcher) HasNotifiers() bool {
	return len(d.notifiers) > 0
}

// Names lists the configured notifiers.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

func donationText(e model.DonationEvent) string {
	if e.Message == "" {
		return e.String()
	}
	return fmt.Sprintf("%s\n%s", e.String(), e.Message)
}

// parseEvents converts event names to model.Event values, skipping unknown
// names.
func parseEvents(names []string) []model.Event {
	events := make([]model.Event, 0, len(names))
	for _, name := range names {
		e := model.ParseEvent(name)
		if e != "" {
			events = append(events, e)
		}
	}
	return events
}

func containsEvent(events []model.Event, event model.Event) bool {
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}
