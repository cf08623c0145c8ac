package queue

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/aqsync/internal/domain/model"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps events in process. It is meant for tests and local
// development; nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	cfg    settings
	events map[string]*model.Event
	order  []string // arrival order
	hashes map[string]string
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryStore{
		cfg:    cfg,
		events: make(map[string]*model.Event),
		hashes: make(map[string]string),
	}
}

func (s *MemoryStore) Dispatch(_ context.Context, req DispatchRequest) (string, error) {
	payload, err := encodePayload(req.Payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if _, exists := s.hashes[req.Hash]; exists {
		return "", fmt.Errorf("dispatching %s: %w", req.Hash, ErrDuplicateHash)
	}
	status := req.Status
	if status == "" {
		status = model.StatusFinished
	}
	now := s.cfg.now()
	e := &model.Event{
		ID:          uuid.NewString(),
		Hash:        req.Hash,
		Topic:       req.Topic,
		Sender:      req.Sender,
		Project:     req.Project,
		User:        req.User,
		Description: req.Description,
		Status:      status,
		Summary:     maps.Clone(req.Summary),
		Payload:     payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.insertLocked(e)
	return e.ID, nil
}

func (s *MemoryStore) insertLocked(e *model.Event) {
	s.events[e.ID] = e
	s.hashes[e.Hash] = e.ID
	s.order = append(s.order, e.ID)
}

func (s *MemoryStore) Enroll(_ context.Context, req EnrollRequest) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if req.Sequential {
		for _, id := range s.order {
			e := s.events[id]
			if e.Topic == req.Target && (e.Status == model.StatusPending || e.Status == model.StatusInProgress) {
				return nil, nil
			}
		}
	}
	for _, id := range s.order {
		src := s.events[id]
		if src.Topic != req.Source {
			continue
		}
		jobID, exists := s.hashes[JobHash(req.Target, src.ID)]
		if !exists {
			now := s.cfg.now()
			job := &model.Event{
				ID:          uuid.NewString(),
				Hash:        JobHash(req.Target, src.ID),
				Topic:       req.Target,
				Sender:      req.Sender,
				Project:     src.Project,
				User:        src.User,
				Description: src.Description,
				Status:      model.StatusPending,
				DependsOn:   src.ID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			s.insertLocked(job)
			return cloneEvent(job), nil
		}
		job := s.events[jobID]
		if job.Status == model.StatusRestarted {
			job.Status = model.StatusPending
			job.Sender = req.Sender
			job.UpdatedAt = s.cfg.now()
			return cloneEvent(job), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return cloneEvent(e), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate func(*model.Event)) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	next := cloneEvent(e)
	mutate(next)
	next.ID, next.Hash, next.Topic, next.CreatedAt = e.ID, e.Hash, e.Topic, e.CreatedAt
	next.UpdatedAt = s.cfg.now()
	s.events[id] = next
	return cloneEvent(next), nil
}

func (s *MemoryStore) FindByHash(_ context.Context, hash string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.hashes[hash]
	if !ok {
		return nil, nil
	}
	return cloneEvent(s.events[id]), nil
}

func (s *MemoryStore) Restart(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	now := s.cfg.now()
	restart := func(ev *model.Event) {
		ev.Status = model.StatusRestarted
		ev.Retries = 0
		ev.UpdatedAt = now
	}
	restart(e)
	for _, other := range s.events {
		if other.DependsOn == id {
			restart(other)
		}
	}
	return nil
}

func (s *MemoryStore) Recover(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.cfg.now()
	for _, e := range s.events {
		if e.DependsOn == "" {
			continue
		}
		if e.Status == model.StatusPending || e.Status == model.StatusInProgress {
			e.Status = model.StatusRestarted
			e.Retries++
			e.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, id := range slices.Backward(s.order) {
		e := s.events[id]
		if filter.Topic != "" && e.Topic != filter.Topic {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, *cloneEvent(e))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) View(_ context.Context, id string) (*model.EventView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	view := &model.EventView{ID: e.ID, ProjectName: e.Project, Summary: maps.Clone(e.Summary)}
	for _, other := range slices.Backward(s.order) {
		if job := s.events[other]; job.DependsOn == id {
			view.Status = job.Status
			break
		}
	}
	return view, nil
}

func (s *MemoryStore) Counts(_ context.Context, topic string) (map[model.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.JobStatus]int, len(model.Statuses))
	for _, st := range model.Statuses {
		counts[st] = 0
	}
	for _, e := range s.events {
		if topic == "" || e.Topic == topic {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneEvent(e *model.Event) *model.Event {
	cp := *e
	cp.Summary = maps.Clone(e.Summary)
	cp.Payload = slices.Clone(e.Payload)
	return &cp
}
