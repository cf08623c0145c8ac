package worker

import (
	"time"

	"github.com/okian/aqsync/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithPollInterval sets how long the scheduler sleeps on an empty queue.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithSender sets the sender recorded on processing jobs.
func WithSender(sender string) Option {
	return func(s *Scheduler) {
		if sender != "" {
			s.sender = sender
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
