// Package worker runs the single-consumer processor loop: enroll the next
// job by priority, mark it in progress, dispatch it to a handler and mark
// it finished.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/aqsync/internal/adapters/mq/queue"
	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/pkg/logger"
	"github.com/okian/aqsync/pkg/metrics"
)

const defaultPollInterval = 500 * time.Millisecond

// Priority lists the source topics in enrollment order.
var Priority = []string{model.TopicSyncProject, model.TopicProjectCreate, model.TopicLeech}

// Jobs is the part of the job store the scheduler uses.
type Jobs interface {
	Enroll(ctx context.Context, req queue.EnrollRequest) (*model.Event, error)
	Get(ctx context.Context, id string) (*model.Event, error)
	Update(ctx context.Context, id string, mutate func(*model.Event)) (*model.Event, error)
}

// Handlers does the work behind each job kind.
type Handlers interface {
	// SyncProject runs a full sync. source is the aquarium.sync_project
	// event; its summary receives the progress.
	SyncProject(ctx context.Context, source *model.Event, payload model.SyncPayload) error
	CreateProject(ctx context.Context, source *model.Event, payload model.CreatePayload) error
	SyncFolder(ctx context.Context, event model.SourceEvent) error
	SyncTask(ctx context.Context, event model.SourceEvent) error
	RefreshProject(ctx context.Context, event model.SourceEvent) error
}

// Stats counts what the scheduler did since it started.
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Ignored   int64 `json:"ignored"`
	Rejected  int64 `json:"rejected"`
}

// Scheduler is the processor loop.
type Scheduler struct {
	jobs         Jobs
	handlers     Handlers
	pollInterval time.Duration
	sender       string

	mu    sync.Mutex
	stats Stats

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(jobs Jobs, handlers Handlers, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:         jobs,
		handlers:     handlers,
		pollInterval: defaultPollInterval,
		sender:       "aquarium-processor",
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		logger:       logger.Get().Named("processor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes jobs until ctx is canceled or Shutdown is called. The stop
// signal is only checked between jobs.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	s.logger.Info(ctx, "processor loop started", logger.String("poll_interval", s.pollInterval.String()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		default:
		}

		job, err := s.Next(ctx)
		if err != nil {
			s.logger.Error(ctx, "enrolling job failed", logger.Error(err))
			metrics.RecordErrorByComponent("processor", "enroll_error")
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.shutdown:
				return
			case <-time.After(s.pollInterval):
			}
			continue
		}

		// The job finishes even when a stop arrives meanwhile.
		_ = s.Process(context.WithoutCancel(ctx), job)
	}
}

// Shutdown stops the loop after the current job.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Next enrolls the next job: full syncs first, then project creations,
// then leeched events.
func (s *Scheduler) Next(ctx context.Context) (*model.Event, error) {
	for _, source := range Priority {
		job, err := s.jobs.Enroll(ctx, queue.EnrollRequest{
			Source:     source,
			Target:     model.TopicProcess,
			Sender:     s.sender,
			Sequential: true,
		})
		if err != nil {
			return nil, fmt.Errorf("enrolling %s: %w", source, err)
		}
		if job != nil {
			metrics.RecordJobEnrolled(source)
			return job, nil
		}
	}
	return nil, nil
}

// Process runs one enrolled job. On a handler error the job is left in
// progress and the error returned. A job whose source payload cannot be
// decoded is finished as rejected so later jobs can be enrolled.
func (s *Scheduler) Process(ctx context.Context, job *model.Event) error {
	start := time.Now()
	source, err := s.jobs.Get(ctx, job.DependsOn)
	if err != nil {
		s.logger.Error(ctx, "reading source event failed", logger.String("job_id", job.ID), logger.Error(err))
		return fmt.Errorf("reading source of %s: %w", job.ID, err)
	}

	if _, err := s.jobs.Update(ctx, job.ID, func(e *model.Event) {
		e.Status = model.StatusInProgress
		e.Sender = s.sender
		e.Description = "Processing " + source.Description
	}); err != nil {
		return fmt.Errorf("marking %s in progress: %w", job.ID, err)
	}

	s.logger.Info(ctx, "processing event",
		logger.String("job_id", job.ID),
		logger.String("topic", source.Topic))

	err = s.Dispatch(ctx, source)
	if errors.Is(err, ErrBadPayload) {
		return s.reject(ctx, job, source, err)
	}
	if err != nil {
		s.count(func(st *Stats) { st.Failed++ })
		metrics.RecordJobFailed(source.Topic)
		metrics.RecordErrorByComponent("processor", "handler_error")
		s.logger.Error(ctx, "processing event failed, job left in progress",
			logger.String("job_id", job.ID),
			logger.String("topic", source.Topic),
			logger.Error(err))
		return err
	}

	if _, err := s.jobs.Update(ctx, job.ID, func(e *model.Event) {
		e.Status = model.StatusFinished
		e.Sender = s.sender
		e.Description = "Processed " + source.Description
	}); err != nil {
		return fmt.Errorf("marking %s finished: %w", job.ID, err)
	}
	s.count(func(st *Stats) { st.Processed++ })
	metrics.RecordJobFinished(source.Topic, float64(time.Since(start).Milliseconds()))
	return nil
}

func (s *Scheduler) reject(ctx context.Context, job, source *model.Event, cause error) error {
	if _, err := s.jobs.Update(ctx, job.ID, func(e *model.Event) {
		e.Status = model.StatusFinished
		e.Sender = s.sender
		e.Description = "Rejected " + source.Description
		e.Summary = map[string]any{"rejected": cause.Error()}
	}); err != nil {
		return fmt.Errorf("marking %s rejected: %w", job.ID, err)
	}
	s.count(func(st *Stats) { st.Rejected++ })
	metrics.RecordErrorByComponent("processor", "bad_payload")
	s.logger.Warn(ctx, "rejected job with malformed payload",
		logger.String("job_id", job.ID),
		logger.String("topic", source.Topic),
		logger.Error(cause))
	return nil
}

// Dispatch routes a source event to its handler.
func (s *Scheduler) Dispatch(ctx context.Context, source *model.Event) error {
	switch source.Topic {
	case model.TopicSyncProject:
		var payload model.SyncPayload
		if err := json.Unmarshal(source.Payload, &payload); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return s.handlers.SyncProject(ctx, source, payload)
	case model.TopicProjectCreate:
		var payload model.CreatePayload
		if err := json.Unmarshal(source.Payload, &payload); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return s.handlers.CreateProject(ctx, source, payload)
	case model.TopicLeech:
		var event model.SourceEvent
		if err := json.Unmarshal(source.Payload, &event); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return s.dispatchLeech(ctx, event)
	}
	s.ignore(ctx, source.Topic)
	return nil
}

func (s *Scheduler) dispatchLeech(ctx context.Context, event model.SourceEvent) error {
	switch action := Resolve(event.Topic); action {
	case ActionSyncFolder:
		return s.handlers.SyncFolder(ctx, event)
	case ActionSyncTask:
		return s.handlers.SyncTask(ctx, event)
	case ActionRefreshProject:
		return s.handlers.RefreshProject(ctx, event)
	default:
		s.ignore(ctx, event.Topic)
		return nil
	}
}

func (s *Scheduler) ignore(ctx context.Context, topic string) {
	s.count(func(st *Stats) { st.Ignored++ })
	metrics.RecordJobIgnored()
	s.logger.Debug(ctx, "no handler for topic", logger.String("topic", topic))
}

func (s *Scheduler) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
