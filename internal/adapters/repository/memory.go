package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/aqsync/internal/domain/model"
)

var _ Store = (*MemoryStore)(nil)

type memoryProject struct {
	project     model.Project
	folders     map[string]*model.FolderEntity // by id
	tasks       map[string]*model.TaskEntity   // by id
	folderOrder []string
	taskOrder   []string
}

func newMemoryProject(p model.Project) *memoryProject {
	return &memoryProject{
		project: p,
		folders: make(map[string]*model.FolderEntity),
		tasks:   make(map[string]*model.TaskEntity),
	}
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*memoryProject
	order    []string
	users    []model.User
	saves    int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{projects: make(map[string]*memoryProject)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Saves returns the number of folder and task saves so far.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *MemoryStore) GetProject(_ context.Context, name string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[name]
	if !ok {
		return nil, nil
	}
	cp := p.project
	cp.Attrib = cloneMap(p.project.Attrib)
	cp.TaskTypes = slices.Clone(p.project.TaskTypes)
	cp.Statuses = slices.Clone(p.project.Statuses)
	return &cp, nil
}

func (s *MemoryStore) FolderByKey(_ context.Context, project, aquariumKey string) (*model.FolderEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[project]
	if !ok {
		return nil, nil
	}
	for _, id := range p.folderOrder {
		if f := p.folders[id]; f.Data.AquariumKey == aquariumKey {
			return cloneFolder(f), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) TaskByKey(_ context.Context, project, aquariumKey string) (*model.TaskEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[project]
	if !ok {
		return nil, nil
	}
	for _, id := range p.taskOrder {
		if t := p.tasks[id]; t.Data.AquariumKey == aquariumKey {
			return cloneTask(t), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SaveFolder(_ context.Context, project string, folder *model.FolderEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[project]
	if !ok {
		return fmt.Errorf("saving folder %q: %w", folder.Name, ErrProjectNotFound)
	}
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	if _, exists := p.folders[folder.ID]; !exists {
		p.folderOrder = append(p.folderOrder, folder.ID)
	}
	p.folders[folder.ID] = cloneFolder(folder)
	s.saves++
	return nil
}

func (s *MemoryStore) SaveTask(_ context.Context, project string, task *model.TaskEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[project]
	if !ok {
		return fmt.Errorf("saving task %q: %w", task.Name, ErrProjectNotFound)
	}
	if task.FolderID != "" {
		if _, ok := p.folders[task.FolderID]; !ok {
			return fmt.Errorf("saving task %q: folder %s does not exist", task.Name, task.FolderID)
		}
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if _, exists := p.tasks[task.ID]; !exists {
		p.taskOrder = append(p.taskOrder, task.ID)
	}
	p.tasks[task.ID] = cloneTask(task)
	s.saves++
	return nil
}

func (s *MemoryStore) SetFolderKey(_ context.Context, project, folderID, aquariumKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[project]
	if !ok {
		return fmt.Errorf("project %s: %w", project, ErrProjectNotFound)
	}
	f, ok := p.folders[folderID]
	if !ok {
		return fmt.Errorf("folder %s: %w", folderID, ErrFolderNotFound)
	}
	f.Data.AquariumKey = aquariumKey
	return nil
}

func (s *MemoryStore) ProjectExists(_ context.Context, name, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.existsLocked(name, code), nil
}

func (s *MemoryStore) existsLocked(name, code string) bool {
	if _, ok := s.projects[name]; ok {
		return true
	}
	for _, p := range s.projects {
		if code != "" && p.project.Code == code {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateProject(_ context.Context, name, code string, anatomy model.Anatomy) error {
	if err := ValidateProjectName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsLocked(name, code) {
		return fmt.Errorf("project %s: %w", name, ErrProjectExists)
	}
	s.projects[name] = newMemoryProject(model.Project{
		Name:      name,
		Code:      code,
		TaskTypes: slices.Clone(anatomy.TaskTypes),
		Statuses:  slices.Clone(anatomy.Statuses),
		Attrib:    cloneMap(anatomy.Attributes),
	})
	s.order = append(s.order, name)
	return nil
}

func (s *MemoryStore) SetProjectKey(_ context.Context, name, aquariumKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[name]
	if !ok {
		return fmt.Errorf("project %s: %w", name, ErrProjectNotFound)
	}
	p.project.AquariumProjectKey = aquariumKey
	return nil
}

func (s *MemoryStore) ProjectLinks(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links := make(map[string]string)
	for _, name := range s.order {
		if key := s.projects[name].project.AquariumProjectKey; key != "" {
			links[key] = name
		}
	}
	return links, nil
}

func (s *MemoryStore) UpdateProjectAttrib(_ context.Context, name string, attrib map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[name]
	if !ok {
		return fmt.Errorf("project %s: %w", name, ErrProjectNotFound)
	}
	if p.project.Attrib == nil {
		p.project.Attrib = make(map[string]any, len(attrib))
	}
	for k, v := range attrib {
		p.project.Attrib[k] = v
	}
	return nil
}

func (s *MemoryStore) Users(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.users), nil
}

func (s *MemoryStore) Hierarchy(_ context.Context, project string) ([]model.HierarchyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[project]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", project, ErrProjectNotFound)
	}
	tasksByFolder := make(map[string][]string)
	for _, id := range p.taskOrder {
		t := p.tasks[id]
		tasksByFolder[t.FolderID] = append(tasksByFolder[t.FolderID], t.Name)
	}
	entries := make([]model.HierarchyEntry, 0, len(p.folderOrder))
	for _, id := range p.folderOrder {
		f := p.folders[id]
		names := tasksByFolder[id]
		entries = append(entries, model.HierarchyEntry{
			ID:        f.ID,
			ParentID:  f.ParentID,
			Type:      f.FolderType,
			Name:      f.Name,
			Label:     f.Label,
			TaskNames: names,
			HasTasks:  len(names) > 0,
		})
	}
	return entries, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneFolder(f *model.FolderEntity) *model.FolderEntity {
	cp := *f
	cp.Attrib = cloneMap(f.Attrib)
	cp.OwnAttrib = slices.Clone(f.OwnAttrib)
	cp.Tags = slices.Clone(f.Tags)
	return &cp
}

func cloneTask(t *model.TaskEntity) *model.TaskEntity {
	cp := *t
	cp.Attrib = cloneMap(t.Attrib)
	cp.OwnAttrib = slices.Clone(t.OwnAttrib)
	cp.Tags = slices.Clone(t.Tags)
	cp.Assignees = slices.Clone(t.Assignees)
	return &cp
}
