package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project already exists")
	ErrInvalidName     = errors.New("invalid project name")
	ErrFolderNotFound  = errors.New("folder not found")
)
