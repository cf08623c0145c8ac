package service

import (
	"context"

	"github.com/okian/aqsync/internal/adapters/mq/leecher"
	"github.com/okian/aqsync/internal/adapters/mq/worker"
	"github.com/okian/aqsync/internal/domain/dedupe"
	"github.com/okian/aqsync/pkg/logger"
	"github.com/okian/aqsync/pkg/metrics"
)

// RunProcessor runs the processor loop until ctx is done or the service
// stops. Jobs are handed to addon, which is the service itself when nil.
func (s *Service) RunProcessor(ctx context.Context, addon Addon) error {
	if err := s.ready(); err != nil {
		return err
	}
	if addon == nil {
		addon = s
	}
	cfg := s.cfg.Processor

	if cfg.RecoverStuck {
		n, err := s.jobs.Recover(ctx)
		if err != nil {
			return err
		}
		metrics.RecordJobsRecovered(n)
		if n > 0 {
			s.logger.Warn(ctx, "stuck jobs moved back to restarted", logger.Int("count", n))
		}
	}
	if err := s.signedIn(ctx); err != nil {
		s.logger.Warn(ctx, "aquarium not signed in yet, jobs will retry", logger.Error(err))
	}

	scheduler := worker.NewScheduler(s.jobs, NewHandlers(addon, s.aquarium),
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithSender(cfg.Sender))
	s.mu.Lock()
	s.scheduler = scheduler
	s.mu.Unlock()

	scheduler.Run(ctx)
	return nil
}

// RunLeecher forwards Aquarium live events into the job store until ctx is
// done or the service stops.
func (s *Service) RunLeecher(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	cfg := s.cfg.Leecher
	l := leecher.New(s.aquarium, s.jobs,
		leecher.WithAllowedTopics(cfg.AllowedTopics...),
		leecher.WithIgnoredTopics(cfg.IgnoredTopics...),
		leecher.WithCredentials(s.cfg.Aquarium.BotKey, s.cfg.Aquarium.BotSecret),
		leecher.WithReconnectDelay(cfg.ReconnectDelay),
		leecher.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))),
		leecher.WithSender(cfg.Sender))
	s.mu.Lock()
	s.leecher = l
	s.mu.Unlock()

	return l.Run(ctx)
}
