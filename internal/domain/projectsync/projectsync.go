// Package projectsync upserts a whole Aquarium project into AYON, type by
// type in a fixed order so parents always exist before their children.
package projectsync

import (
	"context"
	"math"
	"time"

	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/reconcile"
	"github.com/okian/aqsync/pkg/logger"
	"github.com/okian/aqsync/pkg/metrics"
)

// Projects finds AYON projects. A missing project is nil and no error.
type Projects interface {
	GetProject(ctx context.Context, name string) (*model.Project, error)
}

// Upserter reconciles single records.
type Upserter interface {
	SyncFolder(ctx context.Context, project string, folder model.Folder, path model.Path) (string, error)
	SyncTask(ctx context.Context, project string, task model.Task, path model.Path) (string, error)
}

// Reporter persists the progress summary of a sync.
type Reporter interface {
	Report(ctx context.Context, summary map[string]any) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, summary map[string]any) error

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, summary map[string]any) error { return f(ctx, summary) }

// Result counts what a sync did.
type Result struct {
	Project string `json:"project"`
	Folders int    `json:"folders"`
	Tasks   int    `json:"tasks"`
	Failed  int    `json:"failed"`
}

// Syncer runs full project syncs.
type Syncer struct {
	projects Projects
	upserter Upserter
	logger   logger.Logger
}

// New creates a Syncer.
func New(projects Projects, upserter Upserter) *Syncer {
	return &Syncer{
		projects: projects,
		upserter: upserter,
		logger:   logger.Get().Named("projectsync"),
	}
}

// Sync upserts batch into project in model.SyncOrder. Inside a type each
// folder is followed by its tasks. After each folder the summary entry of
// its type is updated and handed to report, which may be nil. A failing
// record is logged and skipped.
func (s *Syncer) Sync(ctx context.Context, project string, batch model.Batch, report Reporter) (Result, error) {
	start := time.Now()
	res := Result{Project: project}

	proj, err := s.projects.GetProject(ctx, project)
	if err != nil {
		return res, err
	}
	if proj == nil {
		s.logger.Error(ctx, "can't sync project, not found in AYON", logger.String("project", project))
		return res, reconcile.ErrProjectNotFound
	}
	if proj.AquariumProjectKey == "" {
		s.logger.Error(ctx, "can't sync project, not paired with Aquarium", logger.String("project", project))
		return res, reconcile.ErrNotPaired
	}

	s.logger.Info(ctx, "syncing project", logger.String("project", project), logger.Int("folders", batch.Len()))

	summary := make(map[string]any, len(batch))
	for _, itemType := range model.SyncOrder {
		if records := batch[itemType]; len(records) > 0 {
			summary[itemType] = model.Progress{Count: len(records)}
		}
	}

	for _, itemType := range model.SyncOrder {
		records := batch[itemType]
		for i, rec := range records {
			if _, err := s.upserter.SyncFolder(ctx, project, rec.Folder, rec.Path); err != nil {
				res.Failed++
			} else {
				res.Folders++
			}
			for _, task := range rec.Tasks {
				if _, err := s.upserter.SyncTask(ctx, project, task.Task, task.Path); err != nil {
					res.Failed++
				} else {
					res.Tasks++
				}
			}

			summary[itemType] = model.Progress{
				Count:       len(records),
				Progression: Progression(i+1, len(records)),
			}
			if report != nil {
				if err := report.Report(ctx, summary); err != nil {
					s.logger.Warn(ctx, "progress not saved", logger.String("project", project), logger.Error(err))
				}
			}
		}
	}

	metrics.RecordProjectSyncDuration(float64(time.Since(start).Milliseconds()))
	s.logger.Info(ctx, "project synced",
		logger.String("project", project),
		logger.Int("folders", res.Folders),
		logger.Int("tasks", res.Tasks),
		logger.Int("failed", res.Failed),
	)
	return res, nil
}

// Progression is done/total rounded to two decimals.
func Progression(done, total int) float64 {
	if total == 0 {
		return 1
	}
	return math.Round(float64(done)/float64(total)*100) / 100
}
