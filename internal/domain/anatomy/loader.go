package anatomy

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/aqsync/internal/domain/model"
)

// ErrProjectNotFound is returned when Aquarium has no project for the key.
var ErrProjectNotFound = errors.New("project not found on aquarium")

// Queries reading an Aquarium project and its template tasks.
const (
	ProjectQuery       = "# 0,1 item._key == @projectKey VIEW $view"
	TemplateTasksQuery = "# -($Child, 3)> $Template AND item.data.templateData.type IN ['Library', 'Asset', 'Episode', 'Sequence', 'Shot'] -($Child, 2)> $Task SORT edge.data.weight ASC VIEW $view"
)

// Source runs Aquarium queries and decodes rows into out.
type Source interface {
	Query(ctx context.Context, meshql string, aliases map[string]any, out any) error
	Traverse(ctx context.Context, startKey, meshql string, aliases map[string]any, out any) error
}

type projectRow struct {
	Item       model.Item       `json:"item"`
	Properties []map[string]any `json:"properties"`
}

func loadProject(ctx context.Context, src Source, projectKey string) (projectRow, error) {
	aliases := map[string]any{
		"projectKey": projectKey,
		"view": map[string]any{
			"item":       "item",
			"properties": "# -($Child)> $Properties VIEW item.data",
		},
	}
	var rows []projectRow
	if err := src.Query(ctx, ProjectQuery, aliases, &rows); err != nil {
		return projectRow{}, fmt.Errorf("querying project %s: %w", projectKey, err)
	}
	if len(rows) == 0 {
		return projectRow{}, fmt.Errorf("project %s: %w", projectKey, ErrProjectNotFound)
	}
	return rows[0], nil
}

// Load reads the project behind projectKey and builds its anatomy. The
// Aquarium project item is returned alongside.
func Load(ctx context.Context, src Source, projectKey string, settings Settings) (model.Anatomy, model.Item, error) {
	project, err := loadProject(ctx, src, projectKey)
	if err != nil {
		return model.Anatomy{}, model.Item{}, err
	}
	aliases := map[string]any{
		"view": map[string]any{
			"name":      "item.data.name",
			"shortName": "item.data.shortName",
			"icon":      "item.data.icon",
		},
	}
	var tasks []TemplateTask
	if err := src.Traverse(ctx, projectKey, TemplateTasksQuery, aliases, &tasks); err != nil {
		return model.Anatomy{}, model.Item{}, fmt.Errorf("reading template tasks of %s: %w", projectKey, err)
	}
	return Build(project.Item, project.Properties, tasks, settings), project.Item, nil
}

// LoadAttributes reads only the project attributes.
func LoadAttributes(ctx context.Context, src Source, projectKey string) (map[string]any, error) {
	project, err := loadProject(ctx, src, projectKey)
	if err != nil {
		return nil, err
	}
	return ParseAttrib(project.Item.Data, project.Properties), nil
}
