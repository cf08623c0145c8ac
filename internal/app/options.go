package service

import (
	"time"

	"github.com/okian/aqsync/internal/adapters/aquarium"
	"github.com/okian/aqsync/internal/adapters/mq/queue"
	"github.com/okian/aqsync/internal/adapters/repository"
	"github.com/okian/aqsync/internal/config"
	"github.com/okian/aqsync/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults come from config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRepository injects the AYON entity store instead of opening the
// configured one. The service does not close it.
func WithRepository(store repository.Store) Option {
	return func(s *Service) {
		s.repo = store
		s.ownsRepo = false
	}
}

// WithJobStore injects the job store instead of opening the configured
// one. The service does not close it.
func WithJobStore(store queue.Store) Option {
	return func(s *Service) {
		s.jobs = store
		s.ownsJobs = false
	}
}

// WithAquarium injects the Aquarium client instead of building one from
// the configuration.
func WithAquarium(client *aquarium.Client) Option {
	return func(s *Service) {
		s.aquarium = client
	}
}

// WithClock replaces the clock used for sync request hashes.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
