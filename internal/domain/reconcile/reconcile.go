// Package reconcile creates or updates one AYON folder or task from a
// canonical record and the leaf-first Aquarium path of that record.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/pkg/logger"
	"github.com/okian/aqsync/pkg/metrics"
)

// Entities is the AYON persistence the reconciler needs. Lookups return
// nil and no error when nothing matches.
type Entities interface {
	GetProject(ctx context.Context, name string) (*model.Project, error)
	FolderByKey(ctx context.Context, project, aquariumKey string) (*model.FolderEntity, error)
	TaskByKey(ctx context.Context, project, aquariumKey string) (*model.TaskEntity, error)
	// SaveFolder and SaveTask assign an id to new entities.
	SaveFolder(ctx context.Context, project string, folder *model.FolderEntity) error
	SaveTask(ctx context.Context, project string, task *model.TaskEntity) error
}

// Stats counts reconcile outcomes since the Reconciler was built.
type Stats struct {
	Created   int64 `json:"created"`
	Updated   int64 `json:"updated"`
	Unchanged int64 `json:"unchanged"`
	Failed    int64 `json:"failed"`
}

// Reconciler upserts entities one record at a time.
type Reconciler struct {
	store  Entities
	logger logger.Logger

	created   atomic.Int64
	updated   atomic.Int64
	unchanged atomic.Int64
	failed    atomic.Int64
}

// New creates a Reconciler over store.
func New(store Entities, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		logger: logger.Get().Named("reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns a snapshot of the counters.
func (r *Reconciler) Stats() Stats {
	return Stats{
		Created:   r.created.Load(),
		Updated:   r.updated.Load(),
		Unchanged: r.unchanged.Load(),
		Failed:    r.failed.Load(),
	}
}

// SyncFolder upserts folder into project and returns its id. path must be
// leaf-first: path[1] is the immediate parent. A parent that is not in AYON
// yet leaves the folder without a parent link.
func (r *Reconciler) SyncFolder(ctx context.Context, project string, folder model.Folder, path model.Path) (string, error) {
	key := folder.Data.AquariumKey
	if key == "" {
		r.logger.Error(ctx, "folder has no aquarium key", logger.String("folder", folder.Name))
		r.fail("folder", "rejected")
		return "", ErrMissingKey
	}

	parentID, err := r.parentID(ctx, project, path)
	if err != nil {
		r.logger.Error(ctx, "parent lookup failed", logger.String("folder", folder.Name), logger.String("aquariumKey", key), logger.Error(err))
		r.fail("folder", "failed")
		return "", fmt.Errorf("%w: %w", ErrSave, err)
	}
	if parentID != "" {
		folder.ParentID = parentID
	}

	entity, err := r.store.FolderByKey(ctx, project, key)
	if err != nil {
		r.logger.Error(ctx, "folder lookup failed", logger.String("aquariumKey", key), logger.Error(err))
		r.fail("folder", "failed")
		return "", fmt.Errorf("%w: %w", ErrSave, err)
	}

	outcome := "unchanged"
	if entity != nil {
		if diffFolder(entity, folder) {
			outcome = "updated"
		}
	} else {
		entity, err = newFolder(folder)
		if err != nil {
			r.logger.Error(ctx, "error while creating folder", logger.String("folder", folder.Name), logger.String("aquariumKey", key), logger.Error(err))
			r.fail("folder", "failed")
			return "", fmt.Errorf("%w: %w", ErrSave, err)
		}
		outcome = "created"
	}

	if outcome != "unchanged" {
		if err := r.store.SaveFolder(ctx, project, entity); err != nil {
			r.logger.Error(ctx, "error while saving folder", logger.String("folder", folder.Name), logger.String("aquariumKey", key), logger.Error(err))
			r.fail("folder", "failed")
			return "", fmt.Errorf("%w: %w", ErrSave, err)
		}
	}
	r.count("folder", outcome)
	return entity.ID, nil
}

// SyncTask upserts task into project and returns its id. The folder comes
// from path[1] or from task.FolderID. The task type is inferred from the
// project task types when empty, the status defaults to the first project
// status.
func (r *Reconciler) SyncTask(ctx context.Context, project string, task model.Task, path model.Path) (string, error) {
	key := task.Data.AquariumKey

	parentID, err := r.parentID(ctx, project, path)
	if err != nil {
		r.logger.Error(ctx, "parent lookup failed", logger.String("task", task.Name), logger.String("aquariumKey", key), logger.Error(err))
		r.fail("task", "failed")
		return "", fmt.Errorf("%w: %w", ErrSave, err)
	}
	if parentID != "" {
		task.FolderID = parentID
	}
	if task.FolderID == "" {
		parentKey := ""
		if parent, ok := path.Parent(); ok {
			parentKey = parent.Key
		}
		r.logger.Error(ctx, "task folder not found", logger.String("task", task.Name), logger.String("aquariumKey", key), logger.String("parentKey", parentKey))
		r.fail("task", "rejected")
		return "", ErrNoFolderID
	}
	if key == "" {
		r.logger.Error(ctx, "task has no aquarium key", logger.String("task", task.Name))
		r.fail("task", "rejected")
		return "", ErrMissingKey
	}

	proj, err := r.store.GetProject(ctx, project)
	if err != nil {
		r.fail("task", "failed")
		return "", fmt.Errorf("%w: %w", ErrSave, err)
	}
	if proj == nil {
		r.fail("task", "rejected")
		return "", ErrProjectNotFound
	}
	if task.TaskType == "" {
		task.TaskType = inferTaskType(proj.TaskTypes, task)
	}
	if task.Status == "" && len(proj.Statuses) > 0 {
		task.Status = proj.Statuses[0].Name
	}

	entity, err := r.store.TaskByKey(ctx, project, key)
	if err != nil {
		r.logger.Error(ctx, "task lookup failed", logger.String("aquariumKey", key), logger.Error(err))
		r.fail("task", "failed")
		return "", fmt.Errorf("%w: %w", ErrSave, err)
	}

	outcome := "unchanged"
	if entity != nil {
		if diffTask(entity, task) {
			outcome = "updated"
		}
	} else {
		entity, err = newTask(task)
		if err != nil {
			r.logger.Error(ctx, "error while creating task", logger.String("task", task.Name), logger.String("aquariumKey", key), logger.Error(err))
			r.fail("task", "failed")
			return "", fmt.Errorf("%w: %w", ErrSave, err)
		}
		outcome = "created"
	}

	if outcome != "unchanged" {
		if err := r.store.SaveTask(ctx, project, entity); err != nil {
			r.logger.Error(ctx, "error while saving task", logger.String("task", task.Name), logger.String("aquariumKey", key), logger.Error(err))
			r.fail("task", "failed")
			return "", fmt.Errorf("%w: %w", ErrSave, err)
		}
	}
	r.count("task", outcome)
	return entity.ID, nil
}

func (r *Reconciler) parentID(ctx context.Context, project string, path model.Path) (string, error) {
	parent, ok := path.Parent()
	if !ok || parent.Key == "" {
		return "", nil
	}
	folder, err := r.store.FolderByKey(ctx, project, parent.Key)
	if err != nil || folder == nil {
		return "", err
	}
	return folder.ID, nil
}

func (r *Reconciler) count(kind, outcome string) {
	switch outcome {
	case "created":
		r.created.Add(1)
	case "updated":
		r.updated.Add(1)
	default:
		r.unchanged.Add(1)
	}
	metrics.RecordEntity(kind, outcome)
}

func (r *Reconciler) fail(kind, outcome string) {
	r.failed.Add(1)
	metrics.RecordEntity(kind, outcome)
}

func inferTaskType(types []model.TaskType, task model.Task) string {
	for _, tt := range types {
		if strings.EqualFold(tt.Name, task.Label) || strings.EqualFold(tt.Name, task.Name) {
			return tt.Name
		}
	}
	return ""
}

func newFolder(f model.Folder) (*model.FolderEntity, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("folder name is empty")
	}
	return &model.FolderEntity{
		Name:       f.Name,
		Label:      f.Label,
		FolderType: f.FolderType,
		ParentID:   f.ParentID,
		Status:     f.Status,
		Tags:       f.Tags,
		Attrib:     cloneAttrib(f.Attrib),
		OwnAttrib:  sortedKeys(f.Attrib),
		Data:       f.Data,
	}, nil
}

func newTask(t model.Task) (*model.TaskEntity, error) {
	if t.Name == "" {
		return nil, fmt.Errorf("task name is empty")
	}
	if t.TaskType == "" {
		return nil, fmt.Errorf("task %q has no task type", t.Name)
	}
	assignees := t.Assignees
	if assignees == nil {
		assignees = []string{}
	}
	return &model.TaskEntity{
		Name:      t.Name,
		Label:     t.Label,
		TaskType:  t.TaskType,
		FolderID:  t.FolderID,
		Status:    t.Status,
		Tags:      t.Tags,
		Assignees: assignees,
		Attrib:    cloneAttrib(t.Attrib),
		OwnAttrib: sortedKeys(t.Attrib),
		Data:      t.Data,
	}, nil
}

// diffFolder copies every differing field of f onto e and reports whether
// anything changed.
func diffFolder(e *model.FolderEntity, f model.Folder) bool {
	changed := false
	if e.Name != f.Name {
		e.Name = f.Name
		changed = true
	}
	if e.Label != f.Label {
		e.Label = f.Label
		changed = true
	}
	if diffAttrib(&e.Attrib, &e.OwnAttrib, f.Attrib) {
		changed = true
	}
	return changed
}

func diffTask(e *model.TaskEntity, t model.Task) bool {
	changed := false
	if e.Name != t.Name {
		e.Name = t.Name
		changed = true
	}
	if e.Label != t.Label {
		e.Label = t.Label
		changed = true
	}
	if e.Status != t.Status {
		e.Status = t.Status
		changed = true
	}
	if !slices.Equal(e.Assignees, t.Assignees) {
		e.Assignees = slices.Clone(t.Assignees)
		if e.Assignees == nil {
			e.Assignees = []string{}
		}
		changed = true
	}
	if diffAttrib(&e.Attrib, &e.OwnAttrib, t.Attrib) {
		changed = true
	}
	return changed
}

func diffAttrib(current *map[string]any, own *[]string, incoming map[string]any) bool {
	changed := false
	for _, key := range sortedKeys(incoming) {
		value := incoming[key]
		old, ok := (*current)[key]
		if ok && sameValue(old, value) {
			continue
		}
		if *current == nil {
			*current = map[string]any{}
		}
		(*current)[key] = value
		if !slices.Contains(*own, key) {
			*own = append(*own, key)
		}
		changed = true
	}
	return changed
}

// sameValue compares attribute values the way they travel: 24 and 24.0
// are equal.
func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func cloneAttrib(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
