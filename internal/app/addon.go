package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/aqsync/internal/adapters/mq/queue"
	"github.com/okian/aqsync/internal/adapters/repository"
	"github.com/okian/aqsync/internal/domain/anatomy"
	"github.com/okian/aqsync/internal/domain/canonical"
	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/projectsync"
	"github.com/okian/aqsync/internal/domain/reconcile"
	"github.com/okian/aqsync/internal/domain/template"
	"github.com/okian/aqsync/internal/domain/trigger"
	"github.com/okian/aqsync/pkg/logger"
)

// Pairings lists every Aquarium project with the AYON project it is
// paired with, if any. A project without a code gets a short name derived
// from its name.
func (s *Service) Pairings(ctx context.Context) ([]model.Pairing, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	links, err := s.repo.ProjectLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading project links: %w", err)
	}
	if err := s.signedIn(ctx); err != nil {
		return nil, err
	}
	projects, err := s.aquarium.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing aquarium projects: %w", err)
	}
	pairings := make([]model.Pairing, 0, len(projects))
	for _, p := range projects {
		code := p.Data.Code
		if code == "" {
			code = canonical.ShortName(p.Data.Name)
		}
		pairings = append(pairings, model.Pairing{
			AquariumProjectKey:  p.Key,
			AquariumProjectName: p.Data.Name,
			AquariumProjectCode: code,
			AyonProjectName:     links[p.Key],
		})
	}
	return pairings, nil
}

// Users lists the AYON users.
func (s *Service) Users(ctx context.Context) ([]model.User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.repo.Users(ctx)
}

// SyncAll upserts batch into project. Progress goes to the summary of the
// sync event eventID when it is set. It returns the project name.
func (s *Service) SyncAll(ctx context.Context, project, eventID string, batch model.Batch) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	var report projectsync.Reporter
	if eventID != "" {
		report = projectsync.ReporterFunc(func(ctx context.Context, summary map[string]any) error {
			_, err := s.jobs.Update(ctx, eventID, func(e *model.Event) {
				e.Summary = summary
			})
			return err
		})
	}
	if _, err := s.syncer.Sync(ctx, project, batch, report); err != nil {
		return "", err
	}
	return project, nil
}

// SyncFolder upserts one folder.
func (s *Service) SyncFolder(ctx context.Context, project string, folder model.Folder, path model.Path) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.reconciler.SyncFolder(ctx, project, folder, path)
}

// SyncTask upserts one task.
func (s *Service) SyncTask(ctx context.Context, project string, task model.Task, path model.Path) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.reconciler.SyncTask(ctx, project, task, path)
}

// pairedKey returns the Aquarium key of an AYON project.
func (s *Service) pairedKey(ctx context.Context, project string) (string, error) {
	p, err := s.repo.GetProject(ctx, project)
	if err != nil {
		return "", fmt.Errorf("reading project %s: %w", project, err)
	}
	if p == nil {
		return "", fmt.Errorf("project %s: %w", project, reconcile.ErrProjectNotFound)
	}
	if p.AquariumProjectKey == "" {
		return "", fmt.Errorf("project %s: %w", project, reconcile.ErrNotPaired)
	}
	return p.AquariumProjectKey, nil
}

// Attributes reads the project attributes from the paired Aquarium project.
func (s *Service) Attributes(ctx context.Context, project string) (map[string]any, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	key, err := s.pairedKey(ctx, project)
	if err != nil {
		return nil, err
	}
	if err := s.signedIn(ctx); err != nil {
		return nil, err
	}
	return anatomy.LoadAttributes(ctx, s.aquarium, key)
}

// UpdateProjectAttrib merges attrib into the AYON project attributes.
func (s *Service) UpdateProjectAttrib(ctx context.Context, project string, attrib map[string]any) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.repo.UpdateProjectAttrib(ctx, project, attrib)
}

// Plan converts the AYON hierarchy of project into an Aquarium template
// plan rooted at a project named aquariumProjectName.
func (s *Service) Plan(ctx context.Context, project, aquariumProjectName string) (template.Plan, error) {
	if err := s.ready(); err != nil {
		return template.Plan{}, err
	}
	entries, err := s.repo.Hierarchy(ctx, project)
	if err != nil {
		return template.Plan{}, fmt.Errorf("reading hierarchy of %s: %w", project, err)
	}
	if aquariumProjectName == "" {
		aquariumProjectName = project
	}
	return s.synth.Synthesize(ctx, aquariumProjectName, entries), nil
}

// Bootstrap creates an Aquarium project from the AYON project hierarchy,
// pairs both projects and writes the created keys back onto the AYON
// folders. It returns the new Aquarium project key.
func (s *Service) Bootstrap(ctx context.Context, project, aquariumProjectName string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	p, err := s.repo.GetProject(ctx, project)
	if err != nil {
		return "", fmt.Errorf("reading project %s: %w", project, err)
	}
	if p == nil {
		return "", fmt.Errorf("project %s: %w", project, trigger.ErrProjectNotFound)
	}
	if p.AquariumProjectKey != "" {
		return "", fmt.Errorf("project %s: %w", project, trigger.ErrAlreadyPaired)
	}

	plan, err := s.Plan(ctx, project, aquariumProjectName)
	if err != nil {
		return "", err
	}
	if err := s.signedIn(ctx); err != nil {
		return "", err
	}
	created, err := s.aquarium.Import(ctx, "", plan.Items, plan.Edges)
	if err != nil {
		return "", fmt.Errorf("importing %s into aquarium: %w", project, err)
	}
	if len(created) == 0 || created[0].Key == "" {
		return "", ErrEmptyImport
	}
	key := created[0].Key
	if err := s.repo.SetProjectKey(ctx, project, key); err != nil {
		return "", fmt.Errorf("pairing %s: %w", project, err)
	}

	linked := 0
	for i, folderID := range plan.Origins {
		if folderID == "" {
			continue
		}
		if err := s.repo.SetFolderKey(ctx, project, folderID, created[i].Key); err != nil {
			s.logger.Warn(ctx, "folder key not saved",
				logger.String("project", project),
				logger.String("folder_id", folderID),
				logger.Error(err))
			continue
		}
		linked++
	}
	s.logger.Info(ctx, "aquarium project created",
		logger.String("project", project),
		logger.String("aquarium_project_key", key),
		logger.Int("items", len(created)),
		logger.Int("templates", plan.Templates),
		logger.Int("folders_linked", linked),
		logger.Int("dropped", len(plan.Dropped)))
	return key, nil
}

// Pair creates the AYON project name from the anatomy of the Aquarium
// project aquariumProjectKey, pairs both and requests a full sync. It
// returns the sync event id.
func (s *Service) Pair(ctx context.Context, user, aquariumProjectKey, name, code string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if aquariumProjectKey == "" || name == "" || code == "" {
		return "", fmt.Errorf("%w: aquariumProjectKey, ayonProjectName and ayonProjectCode are required", ErrBadRequest)
	}
	exists, err := s.repo.ProjectExists(ctx, name, code)
	if err != nil {
		return "", fmt.Errorf("checking project %s: %w", name, err)
	}
	if exists {
		return "", fmt.Errorf("project %s: %w", name, repository.ErrProjectExists)
	}
	if err := s.signedIn(ctx); err != nil {
		return "", err
	}
	anat, _, err := anatomy.Load(ctx, s.aquarium, aquariumProjectKey, s.settings)
	if err != nil {
		return "", err
	}
	if err := s.repo.CreateProject(ctx, name, code, anat); err != nil {
		return "", fmt.Errorf("creating project %s: %w", name, err)
	}
	if err := s.repo.SetProjectKey(ctx, name, aquariumProjectKey); err != nil {
		return "", fmt.Errorf("pairing %s: %w", name, err)
	}
	s.logger.Info(ctx, "project paired",
		logger.String("project", name),
		logger.String("aquarium_project_key", aquariumProjectKey),
		logger.String("user", user))
	return s.trigger.Sync(ctx, name, user, aquariumProjectKey)
}

// Unpair clears the Aquarium key of project.
func (s *Service) Unpair(ctx context.Context, project string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.pairedKey(ctx, project); err != nil {
		return err
	}
	return s.repo.SetProjectKey(ctx, project, "")
}

// TriggerSync requests a full sync of a paired project.
func (s *Service) TriggerSync(ctx context.Context, project, user string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.trigger.Sync(ctx, project, user, "")
}

// CreateProject requests the creation of an Aquarium project from an
// unpaired AYON project. The processor runs the bootstrap.
func (s *Service) CreateProject(ctx context.Context, user, project, aquariumProjectName string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if project == "" {
		return "", fmt.Errorf("%w: ayonProjectName is required", ErrBadRequest)
	}
	return s.trigger.Create(ctx, project, user, aquariumProjectName)
}

// Event returns a sync event with the status of its processing job. Only
// aquarium.sync_project events are visible.
func (s *Service) Event(ctx context.Context, id string) (*model.EventView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	e, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", id, ErrEventNotFound)
	}
	if e.Topic != model.TopicSyncProject {
		return nil, fmt.Errorf("event %s: %w", id, ErrEventNotFound)
	}
	return s.jobs.View(ctx, id)
}

// ListJobs lists stored events, newest first.
func (s *Service) ListJobs(ctx context.Context, filter queue.ListFilter) ([]model.Event, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.jobs.List(ctx, filter)
}

// RecoverJobs moves stuck processing jobs back to restarted.
func (s *Service) RecoverJobs(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	n, err := s.jobs.Recover(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "jobs recovered", logger.Int("count", n))
	return n, nil
}

// RestartJob restarts an event and its processing jobs.
func (s *Service) RestartJob(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.jobs.Restart(ctx, id)
}

// JobCounts returns processing job counts per status, sorted by status.
func (s *Service) JobCounts(ctx context.Context) ([]StatusCount, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	counts, err := s.jobs.Counts(ctx, model.TopicProcess)
	if err != nil {
		return nil, err
	}
	out := make([]StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, StatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

// StatusCount is a job count for one status.
type StatusCount struct {
	Status model.JobStatus `json:"status"`
	Count  int             `json:"count"`
}
