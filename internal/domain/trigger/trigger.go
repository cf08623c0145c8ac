// Package trigger requests full project syncs through the job store.
//
// A request is identified by sha256("aquarium_{timestamp}_{project}_{key}").
// When that hash already exists the stored event is restarted instead of
// dispatching a new one.
package trigger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/aqsync/internal/adapters/mq/queue"
	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/pkg/logger"
	"github.com/okian/aqsync/pkg/metrics"
)

// Events is the part of the job store a trigger needs.
type Events interface {
	Dispatch(ctx context.Context, req queue.DispatchRequest) (string, error)
	FindByHash(ctx context.Context, hash string) (*model.Event, error)
	Update(ctx context.Context, id string, mutate func(*model.Event)) (*model.Event, error)
	Restart(ctx context.Context, id string) error
}

// Projects resolves pairings. A missing project is nil and no error.
type Projects interface {
	GetProject(ctx context.Context, name string) (*model.Project, error)
}

// Trigger dispatches aquarium.sync_project events.
type Trigger struct {
	events   Events
	projects Projects
	now      func() time.Time
	window   time.Duration
	sender   string
	logger   logger.Logger
}

// New creates a Trigger.
func New(events Events, projects Projects, opts ...Option) *Trigger {
	t := &Trigger{
		events:   events,
		projects: projects,
		now:      time.Now,
		logger:   logger.Get().Named("trigger"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Hash returns the dedup hash of a sync request made at ts.
func Hash(ts time.Time, window time.Duration, project, aquariumProjectKey string) string {
	if window > 0 {
		ts = ts.Truncate(window)
	}
	seconds := strconv.FormatFloat(float64(ts.UnixNano())/float64(time.Second), 'f', -1, 64)
	sum := sha256.Sum256([]byte("aquarium_" + seconds + "_" + project + "_" + aquariumProjectKey))
	return hex.EncodeToString(sum[:])
}

// Sync requests a full sync of project on behalf of user and returns the
// event id. aquariumProjectKey is read from the pairing when empty.
func (t *Trigger) Sync(ctx context.Context, project, user, aquariumProjectKey string) (string, error) {
	if aquariumProjectKey == "" {
		p, err := t.projects.GetProject(ctx, project)
		if err != nil {
			return "", fmt.Errorf("reading project %s: %w", project, err)
		}
		if p == nil {
			return "", fmt.Errorf("project %s: %w", project, ErrProjectNotFound)
		}
		if p.AquariumProjectKey == "" {
			return "", fmt.Errorf("project %s: %w", project, ErrNotPaired)
		}
		aquariumProjectKey = p.AquariumProjectKey
	}

	hash := Hash(t.now(), t.window, project, aquariumProjectKey)
	existing, err := t.events.FindByHash(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("looking up sync event: %w", err)
	}
	if existing != nil {
		return t.restart(ctx, existing.ID, project, user)
	}

	id, err := t.events.Dispatch(ctx, queue.DispatchRequest{
		Topic:       model.TopicSyncProject,
		Hash:        hash,
		Sender:      t.sender,
		Project:     project,
		User:        user,
		Description: "Sync project from Aquarium to Ayon",
		Payload:     model.SyncPayload{AquariumProjectKey: aquariumProjectKey},
	})
	if errors.Is(err, queue.ErrDuplicateHash) {
		// Another trigger won the race inside the same window.
		if existing, findErr := t.events.FindByHash(ctx, hash); findErr == nil && existing != nil {
			return t.restart(ctx, existing.ID, project, user)
		}
	}
	if err != nil {
		metrics.RecordSyncTrigger("failed")
		return "", fmt.Errorf("dispatching sync event: %w", err)
	}
	metrics.RecordSyncTrigger("dispatched")
	t.logger.Info(ctx, "sync requested",
		logger.String("project", project),
		logger.String("event_id", id))
	return id, nil
}

func (t *Trigger) restart(ctx context.Context, id, project, user string) (string, error) {
	t.logger.Info(ctx, "sync event already exists, restarting it",
		logger.String("project", project),
		logger.String("event_id", id))
	_, err := t.events.Update(ctx, id, func(e *model.Event) {
		e.Description = "Sync request from Aquarium"
		e.Project = project
		e.User = user
	})
	if err != nil {
		return "", fmt.Errorf("updating sync event: %w", err)
	}
	if err := t.events.Restart(ctx, id); err != nil {
		return "", fmt.Errorf("restarting sync event: %w", err)
	}
	metrics.RecordSyncTrigger("restarted")
	metrics.RecordJobRestarted()
	return id, nil
}

// CreateHash returns the dedup hash of a project creation request made at
// ts.
func CreateHash(ts time.Time, window time.Duration, project, aquariumProjectName string) string {
	return Hash(ts, window, project, "create_"+aquariumProjectName)
}

// Create requests the creation of an Aquarium project named
// aquariumProjectName from the AYON project and returns the event id. A
// repeated request within the dedup window returns the first event.
func (t *Trigger) Create(ctx context.Context, project, user, aquariumProjectName string) (string, error) {
	p, err := t.projects.GetProject(ctx, project)
	if err != nil {
		return "", fmt.Errorf("reading project %s: %w", project, err)
	}
	if p == nil {
		return "", fmt.Errorf("project %s: %w", project, ErrProjectNotFound)
	}
	if p.AquariumProjectKey != "" {
		return "", fmt.Errorf("project %s: %w", project, ErrAlreadyPaired)
	}
	if aquariumProjectName == "" {
		aquariumProjectName = project
	}

	hash := CreateHash(t.now(), t.window, project, aquariumProjectName)
	if existing, err := t.events.FindByHash(ctx, hash); err != nil {
		return "", fmt.Errorf("looking up create event: %w", err)
	} else if existing != nil {
		return existing.ID, nil
	}

	id, err := t.events.Dispatch(ctx, queue.DispatchRequest{
		Topic:       model.TopicProjectCreate,
		Hash:        hash,
		Sender:      t.sender,
		Project:     project,
		User:        user,
		Description: "Create Aquarium project " + aquariumProjectName + " from Ayon",
		Payload:     model.CreatePayload{AquariumProjectName: aquariumProjectName},
	})
	if err != nil {
		metrics.RecordSyncTrigger("failed")
		return "", fmt.Errorf("dispatching create event: %w", err)
	}
	metrics.RecordSyncTrigger("create_dispatched")
	t.logger.Info(ctx, "project creation requested",
		logger.String("project", project),
		logger.String("aquarium_project", aquariumProjectName),
		logger.String("event_id", id))
	return id, nil
}
