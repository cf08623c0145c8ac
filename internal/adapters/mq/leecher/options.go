package leecher

import (
	"time"

	"github.com/okian/aqsync/internal/domain/dedupe"
	"github.com/okian/aqsync/pkg/logger"
)

// Option configures a Leecher.
type Option func(*Leecher)

// WithAllowedTopics replaces the allow set. Only listed topics are forwarded.
func WithAllowedTopics(topics ...string) Option {
	return func(l *Leecher) {
		l.allowed = toSet(topics)
	}
}

// WithIgnoredTopics replaces the deny set, checked before the allow set.
func WithIgnoredTopics(topics ...string) Option {
	return func(l *Leecher) {
		l.ignored = toSet(topics)
	}
}

// WithCredentials sets the bot used to sign in before subscribing.
func WithCredentials(botKey, secret string) Option {
	return func(l *Leecher) {
		l.botKey = botKey
		l.secret = secret
	}
}

// WithReconnectDelay sets the fixed wait between connection attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(l *Leecher) {
		if d > 0 {
			l.reconnectDelay = d
		}
	}
}

// WithDeduper replaces the in-process deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(l *Leecher) {
		if d != nil {
			l.dedupe = d
		}
	}
}

// WithSender sets the sender stored on forwarded jobs.
func WithSender(sender string) Option {
	return func(l *Leecher) {
		if sender != "" {
			l.sender = sender
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Leecher) {
		if lg != nil {
			l.logger = lg
		}
	}
}

func toSet(topics []string) map[string]struct{} {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return set
}
