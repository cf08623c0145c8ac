package trigger

import (
	"time"

	"github.com/okian/aqsync/pkg/logger"
)

// Option configures a Trigger.
type Option func(*Trigger)

// WithClock replaces the wall clock used for hashes.
func WithClock(now func() time.Time) Option {
	return func(t *Trigger) {
		if now != nil {
			t.now = now
		}
	}
}

// WithDedupWindow truncates the hashed timestamp to window. Triggers for
// the same project within one window share an event. Zero hashes the raw
// timestamp.
func WithDedupWindow(window time.Duration) Option {
	return func(t *Trigger) {
		if window >= 0 {
			t.window = window
		}
	}
}

// WithSender sets the sender recorded on dispatched events.
func WithSender(sender string) Option {
	return func(t *Trigger) {
		t.sender = sender
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Trigger) {
		if l != nil {
			t.logger = l
		}
	}
}
