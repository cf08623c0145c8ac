package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/aqsync/internal/adapters/ayon"
	"github.com/okian/aqsync/internal/adapters/repository"
	"github.com/okian/aqsync/internal/domain/canonical"
	"github.com/okian/aqsync/internal/domain/extract"
	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/reconcile"
	"github.com/okian/aqsync/internal/domain/trigger"
	"github.com/okian/aqsync/pkg/logger"
	"github.com/okian/aqsync/pkg/metrics"
)

// Addon is the AYON side of the processor: the addon endpoints, served
// in-process by *Service or remotely through *ayon.Client.
type Addon interface {
	Pairings(ctx context.Context) ([]model.Pairing, error)
	Users(ctx context.Context) ([]model.User, error)
	SyncAll(ctx context.Context, project, eventID string, batch model.Batch) (string, error)
	SyncFolder(ctx context.Context, project string, folder model.Folder, path model.Path) (string, error)
	SyncTask(ctx context.Context, project string, task model.Task, path model.Path) (string, error)
	Attributes(ctx context.Context, project string) (map[string]any, error)
	UpdateProjectAttrib(ctx context.Context, project string, attrib map[string]any) error
	Bootstrap(ctx context.Context, project, aquariumProjectName string) (string, error)
}

var (
	_ Addon = (*Service)(nil)
	_ Addon = (*ayon.Client)(nil)
)

// Handlers does the work of processing jobs. It reads Aquarium through
// source and writes AYON through addon.
type Handlers struct {
	addon  Addon
	source extract.Traverser

	mu       sync.Mutex
	pairings map[string]string

	logger logger.Logger
}

// NewHandlers creates Handlers.
func NewHandlers(addon Addon, source extract.Traverser) *Handlers {
	return &Handlers{
		addon:  addon,
		source: source,
		logger: logger.Get().Named("handlers"),
	}
}

// pairedProject returns the AYON project paired with aquariumProjectKey.
// The pairing list is refreshed once on a miss. Empty means unpaired.
func (h *Handlers) pairedProject(ctx context.Context, aquariumProjectKey string) (string, error) {
	if aquariumProjectKey == "" {
		return "", nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if name, ok := h.pairings[aquariumProjectKey]; ok {
		return name, nil
	}
	pairings, err := h.addon.Pairings(ctx)
	if err != nil {
		return "", fmt.Errorf("reading pairings: %w", err)
	}
	h.pairings = make(map[string]string, len(pairings))
	for _, p := range pairings {
		if p.Paired() {
			h.pairings[p.AquariumProjectKey] = p.AyonProjectName
		}
	}
	return h.pairings[aquariumProjectKey], nil
}

// rejected reports whether err is a refusal of the record rather than a
// failure worth retrying.
func rejected(err error) bool {
	for _, kind := range []error{
		reconcile.ErrMissingKey,
		reconcile.ErrNoFolderID,
		reconcile.ErrProjectNotFound,
		reconcile.ErrNotPaired,
		reconcile.ErrSave,
		trigger.ErrProjectNotFound,
		trigger.ErrAlreadyPaired,
		repository.ErrProjectNotFound,
		ayon.ErrConflict,
		ayon.ErrNotFound,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// settle logs a rejected record and drops it. Other errors go back to the
// scheduler.
func (h *Handlers) settle(ctx context.Context, what, key string, err error) error {
	if err == nil || !rejected(err) {
		return err
	}
	metrics.RecordErrorByComponent("handlers", "rejected")
	h.logger.Warn(ctx, "record rejected",
		logger.String("what", what),
		logger.String("key", key),
		logger.Error(err))
	return nil
}

// SyncProject extracts the whole Aquarium project and upserts it.
func (h *Handlers) SyncProject(ctx context.Context, source *model.Event, payload model.SyncPayload) error {
	project, err := h.pairedProject(ctx, payload.AquariumProjectKey)
	if err != nil {
		return err
	}
	if project == "" {
		h.logger.Info(ctx, "project not paired, skipping full sync", logger.String("aquarium_project_key", payload.AquariumProjectKey))
		return nil
	}
	h.logger.Info(ctx, "full sync", logger.String("project", project), logger.String("aquarium_project_key", payload.AquariumProjectKey))

	batch, err := extract.New(h.source, h.addon).Extract(ctx, payload.AquariumProjectKey)
	if err != nil {
		return err
	}
	_, err = h.addon.SyncAll(ctx, project, source.ID, batch)
	return h.settle(ctx, "project", payload.AquariumProjectKey, err)
}

// CreateProject bootstraps an Aquarium project from the AYON project the
// event was requested for.
func (h *Handlers) CreateProject(ctx context.Context, source *model.Event, payload model.CreatePayload) error {
	key, err := h.addon.Bootstrap(ctx, source.Project, payload.AquariumProjectName)
	if err != nil {
		return h.settle(ctx, "project", source.Project, err)
	}
	h.mu.Lock()
	h.pairings = nil
	h.mu.Unlock()
	h.logger.Info(ctx, "aquarium project bootstrapped",
		logger.String("project", source.Project),
		logger.String("aquarium_project_key", key))
	return nil
}

// SyncFolder upserts the folder an Aquarium event is about.
func (h *Handlers) SyncFolder(ctx context.Context, event model.SourceEvent) error {
	project, err := h.pairedProject(ctx, event.ProjectKey())
	if err != nil || project == "" {
		return err
	}
	item := event.Subject()
	_, err = h.addon.SyncFolder(ctx, project, canonical.Folder(item), event.Path)
	return h.settle(ctx, item.Type, item.Key, err)
}

// SyncTask upserts the task an Aquarium event is about, with its current
// assignees.
func (h *Handlers) SyncTask(ctx context.Context, event model.SourceEvent) error {
	project, err := h.pairedProject(ctx, event.ProjectKey())
	if err != nil || project == "" {
		return err
	}
	item := event.Subject()
	var emails []string
	if err := h.source.Traverse(ctx, item.Key, extract.AssigneesQuery, nil, &emails); err != nil {
		return fmt.Errorf("reading assignees of %s: %w", item.Key, err)
	}
	users, err := h.addon.Users(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	task := canonical.Task(item, emails, canonical.NewUserDirectory(users))
	_, err = h.addon.SyncTask(ctx, project, task, event.Path)
	return h.settle(ctx, item.Type, item.Key, err)
}

// RefreshProject copies the Aquarium project attributes onto the paired
// AYON project.
func (h *Handlers) RefreshProject(ctx context.Context, event model.SourceEvent) error {
	key := event.Data.Item.Key
	if key == "" {
		key = event.ProjectKey()
	}
	project, err := h.pairedProject(ctx, key)
	if err != nil || project == "" {
		return err
	}
	attrib, err := h.addon.Attributes(ctx, project)
	if err != nil {
		return h.settle(ctx, "project", key, err)
	}
	return h.settle(ctx, "project", key, h.addon.UpdateProjectAttrib(ctx, project, attrib))
}
