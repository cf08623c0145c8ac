package queue

import "time"

// Option configures a Store implementation.
type Option func(*settings)

type settings struct {
	now func() time.Time
}

func defaultSettings() settings {
	return settings{now: time.Now}
}

// WithClock replaces the clock used for created and updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
