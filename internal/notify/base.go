package notify

import "github.com/Fo4Ik-git/StreamPlayer/internal/model"

// baseNotifier holds the name and event filter shared by every provider.
type baseNotifier struct {
	name    string
	enabled bool
	events  []model.Event
}

// Name returns the human-readable name of the notifier.
func (b *baseNotifier) Name() string { return b.name }

// IsEnabled reports whether this notifier is active.
func (b *baseNotifier) IsEnabled() bool { return b.enabled }

// ShouldNotify reports whether this notifier fires for event. An empty
// filter means donations only.
func (b *baseNotifier) ShouldNotify(event model.Event) bool {
	if len(b.events) == 0 {
		return event == model.EventDonation
	}
	return containsEvent(b.events, event)
}
