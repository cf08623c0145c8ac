// Package service wires the stores, the Aquarium client and the sync
// domain together. It implements the dependencies of the HTTP API, the
// in-process AYON addon used by the processor, and the processor and
// leecher loops.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/aqsync/internal/adapters/aquarium"
	"github.com/okian/aqsync/internal/adapters/mq/leecher"
	"github.com/okian/aqsync/internal/adapters/mq/queue"
	"github.com/okian/aqsync/internal/adapters/mq/worker"
	"github.com/okian/aqsync/internal/adapters/repository"
	"github.com/okian/aqsync/internal/config"
	"github.com/okian/aqsync/internal/domain/anatomy"
	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/projectsync"
	"github.com/okian/aqsync/internal/domain/reconcile"
	"github.com/okian/aqsync/internal/domain/template"
	"github.com/okian/aqsync/internal/domain/trigger"
	"github.com/okian/aqsync/pkg/logger"
	"github.com/okian/aqsync/pkg/metrics"
)

// Service is the aqsync core.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config
	now func() time.Time

	// Stores
	repo     repository.Store
	ownsRepo bool
	jobs     queue.Store
	ownsJobs bool

	aquarium *aquarium.Client

	// Domain
	reconciler *reconcile.Reconciler
	syncer     *projectsync.Syncer
	trigger    *trigger.Trigger
	synth      *template.Synthesizer
	settings   anatomy.Settings

	// Loops, set while running
	scheduler *worker.Scheduler
	leecher   *leecher.Leecher

	started bool
	logger  logger.Logger
}

// New constructs a Service. Nothing is opened before Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:      config.New(context.Background()),
		now:      time.Now,
		ownsRepo: true,
		ownsJobs: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the configured stores and builds the domain components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting aqsync service...")

	if s.repo == nil {
		repo, err := openRepository(ctx, s.cfg.Repository)
		if err != nil {
			return err
		}
		s.repo = repo
	}
	if s.jobs == nil {
		jobs, err := queue.Open(ctx, s.cfg.JobStore.Driver, s.cfg.JobStore.DSN)
		if err != nil {
			s.closeStores()
			return fmt.Errorf("opening job store: %w", err)
		}
		s.jobs = jobs
	}
	if s.aquarium == nil {
		s.aquarium = aquarium.New(s.cfg.Aquarium.URL,
			aquarium.WithDomain(s.cfg.Aquarium.Domain),
			aquarium.WithTimeout(s.cfg.Aquarium.Timeout))
	}

	s.reconciler = reconcile.New(s.repo)
	s.syncer = projectsync.New(s.repo, s.reconciler)
	s.trigger = trigger.New(s.jobs, s.repo,
		trigger.WithClock(s.now),
		trigger.WithDedupWindow(s.cfg.Sync.DedupWindow),
		trigger.WithSender("aqsync-api"))
	s.synth = template.New(template.WithFolderLikeTypes(s.cfg.Sync.FolderLikeTypes...))
	s.settings = anatomySettings(s.cfg.Sync)

	s.started = true
	s.logger.Info(ctx, "aqsync service started",
		logger.String("jobstore", s.cfg.JobStore.Driver),
		logger.String("repository", s.cfg.Repository.Driver),
		logger.String("aquarium", s.cfg.Aquarium.URL),
	)
	return nil
}

func openRepository(ctx context.Context, cfg config.StoreConfig) (repository.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return repository.NewMemoryStore(), nil
	case "postgres":
		store, err := repository.NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening repository: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown repository driver %q", cfg.Driver)
	}
}

func anatomySettings(cfg config.SyncConfig) anatomy.Settings {
	var settings anatomy.Settings
	for _, t := range cfg.DefaultTasks {
		settings.Tasks = append(settings.Tasks, anatomy.TaskDefault{Name: t.Name, ShortName: t.ShortName, Icon: t.Icon})
	}
	for _, st := range cfg.DefaultStatuses {
		settings.Statuses = append(settings.Statuses, anatomy.StatusDefault{ShortName: st.ShortName, State: st.State, Icon: st.Icon})
	}
	return settings
}

// Stop shuts the loops down and closes the stores the service opened.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping aqsync service...")

	if s.scheduler != nil {
		_ = s.scheduler.Shutdown(ctx)
	}
	if s.leecher != nil {
		_ = s.leecher.Shutdown(ctx)
	}
	s.closeStores()

	s.started = false
	s.logger.Info(ctx, "aqsync service stopped")
}

func (s *Service) closeStores() {
	if s.jobs != nil && s.ownsJobs {
		if err := s.jobs.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing job store", logger.Error(err))
		}
		s.jobs = nil
	}
	if s.repo != nil && s.ownsRepo {
		if err := s.repo.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing repository", logger.Error(err))
		}
		s.repo = nil
	}
}

// ready returns ErrNotStarted before Start.
func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// signedIn makes sure the Aquarium client holds a session.
func (s *Service) signedIn(ctx context.Context) error {
	if s.aquarium.Connected() {
		return nil
	}
	if s.cfg.Aquarium.BotKey == "" {
		return aquarium.ErrNotConnected
	}
	if _, err := s.aquarium.SignIn(ctx, s.cfg.Aquarium.BotKey, s.cfg.Aquarium.BotSecret); err != nil {
		return fmt.Errorf("signing in to aquarium: %w", err)
	}
	return nil
}

// Jobs exposes the job store to the CLI.
func (s *Service) Jobs() queue.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":    s.started,
		"jobstore":   s.cfg.JobStore.Driver,
		"repository": s.cfg.Repository.Driver,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	if counts, err := s.jobs.Counts(ctx, model.TopicProcess); err == nil {
		jobs := make(map[string]int, len(counts))
		for status, n := range counts {
			jobs[string(status)] = n
			metrics.UpdateJobsByStatus(string(status), n)
		}
		stats["jobs"] = jobs
	} else if !errors.Is(err, queue.ErrClosed) {
		s.logger.Warn(ctx, "counting jobs", logger.Error(err))
	}
	stats["entities"] = s.reconciler.Stats()
	stats["aquariumConnected"] = s.aquarium.Connected()
	if s.scheduler != nil {
		stats["processor"] = s.scheduler.Stats()
	}
	if s.leecher != nil {
		stats["leecher"] = s.leecher.Stats()
	}
	return stats
}
