// Package extract reads a whole Aquarium project in one traversal and
// reshapes the rows into a canonical model.Batch.
//
// The traversal returns root-first paths. They are turned leaf-first here,
// once, before anything reaches the reconciler.
package extract

import (
	"context"
	"fmt"

	"github.com/okian/aqsync/internal/domain/canonical"
	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/pkg/logger"
)

// Query selects every syncable item below a project, grouped by type.
const Query = "# -($Child, 3)> 0,1000 item.type IN ['Episode', 'Sequence', 'Shot', 'Library', 'Asset'] SET $set COLLECT type = item.type INTO items = $items SORT null VIEW $view"

// AssigneesQuery lists the emails of the users assigned to a task.
const AssigneesQuery = "# -($Assigned)> $User VIEW item.data.email"

// Aliases returns the aliases of Query. Paths come back root-first and each
// task carries the emails of its assignees.
func Aliases() map[string]any {
	return map[string]any{
		"set": map[string]any{
			"mainPath": "path.vertices",
		},
		"items": map[string]any{
			"folder": "item",
			"tasks":  "# -($Child)> $Task SORT null VIEW $taskView",
			"path":   "mainPath",
		},
		"taskView": map[string]any{
			"task": "item",
			// SHIFT drops the first vertex, which is the last one of mainPath.
			"path":      "APPEND(mainPath, SHIFT(path.vertices))",
			"assignees": AssigneesQuery,
		},
		"view": map[string]any{
			"type":  "type",
			"items": "items",
		},
	}
}

// Row is one COLLECT group of the traversal.
type Row struct {
	Type  string      `json:"type"`
	Items []FolderRow `json:"items"`
}

// FolderRow is a folder item with its tasks.
type FolderRow struct {
	Folder model.Item      `json:"folder"`
	Tasks  []TaskRow       `json:"tasks"`
	Path   model.RootFirst `json:"path"`
}

// TaskRow is a task item with the emails of its assignees.
type TaskRow struct {
	Task      model.Item      `json:"task"`
	Path      model.RootFirst `json:"path"`
	Assignees []string        `json:"assignees"`
}

// Traverser runs a traversal starting at an Aquarium item and decodes the
// rows into out.
type Traverser interface {
	Traverse(ctx context.Context, startKey, meshql string, aliases map[string]any, out any) error
}

// UserSource lists AYON users.
type UserSource interface {
	Users(ctx context.Context) ([]model.User, error)
}

// Extractor builds batches for full project syncs.
type Extractor struct {
	source Traverser
	users  UserSource
	logger logger.Logger
}

// New creates an Extractor.
func New(source Traverser, users UserSource) *Extractor {
	return &Extractor{
		source: source,
		users:  users,
		logger: logger.Get().Named("extract"),
	}
}

// Extract reads the project below projectKey. The user directory is built
// once per call.
func (e *Extractor) Extract(ctx context.Context, projectKey string) (model.Batch, error) {
	users, err := e.users.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	var rows []Row
	if err := e.source.Traverse(ctx, projectKey, Query, Aliases(), &rows); err != nil {
		return nil, fmt.Errorf("traversing project %s: %w", projectKey, err)
	}
	batch := Reshape(rows, canonical.NewUserDirectory(users))
	e.logger.Debug(ctx, "project extracted",
		logger.String("project_key", projectKey),
		logger.Int("folders", batch.Len()))
	return batch, nil
}

// Reshape converts traversal rows into a batch keyed by item type.
func Reshape(rows []Row, users canonical.UserDirectory) model.Batch {
	batch := make(model.Batch, len(rows))
	for _, row := range rows {
		records := make([]model.FolderRecord, 0, len(row.Items))
		for _, it := range row.Items {
			record := model.FolderRecord{
				Folder: canonical.Folder(it.Folder),
				Path:   it.Path.LeafFirst(),
			}
			for _, t := range it.Tasks {
				record.Tasks = append(record.Tasks, model.TaskRecord{
					Task: canonical.Task(t.Task, t.Assignees, users),
					Path: t.Path.LeafFirst(),
				})
			}
			records = append(records, record)
		}
		batch[row.Type] = append(batch[row.Type], records...)
	}
	return batch
}
