// Package repository persists AYON projects, folders, tasks and users.
//
// Lookups return nil and no error when nothing matches. Save methods assign
// an id to new entities.
package repository

import (
	"context"

	"github.com/okian/aqsync/internal/domain/model"
)

// Store provides read/write access to the AYON side.
type Store interface {
	GetProject(ctx context.Context, name string) (*model.Project, error)
	FolderByKey(ctx context.Context, project, aquariumKey string) (*model.FolderEntity, error)
	TaskByKey(ctx context.Context, project, aquariumKey string) (*model.TaskEntity, error)
	SaveFolder(ctx context.Context, project string, folder *model.FolderEntity) error
	SaveTask(ctx context.Context, project string, task *model.TaskEntity) error
	// SetFolderKey links an existing folder to an Aquarium item without
	// touching its other fields.
	SetFolderKey(ctx context.Context, project, folderID, aquariumKey string) error

	// ProjectExists reports whether a project uses name or code.
	ProjectExists(ctx context.Context, name, code string) (bool, error)
	// CreateProject creates an empty project from an anatomy.
	// Returns ErrProjectExists when name or code is taken.
	CreateProject(ctx context.Context, name, code string, anatomy model.Anatomy) error
	// SetProjectKey pairs a project with an Aquarium project. An empty key
	// unpairs it. Returns ErrProjectNotFound for unknown projects.
	SetProjectKey(ctx context.Context, name, aquariumKey string) error
	// ProjectLinks maps every paired Aquarium project key to its AYON project.
	ProjectLinks(ctx context.Context) (map[string]string, error)
	UpdateProjectAttrib(ctx context.Context, name string, attrib map[string]any) error

	Users(ctx context.Context) ([]model.User, error)
	// Hierarchy lists the folders of a project with the names of their tasks.
	Hierarchy(ctx context.Context, project string) ([]model.HierarchyEntry, error)

	Close() error
}
