package repository

import "github.com/okian/aqsync/internal/domain/model"

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithUsers seeds the user directory.
func WithUsers(users ...model.User) Option {
	return func(s *MemoryStore) {
		s.users = append(s.users, users...)
	}
}

// WithProject seeds a project.
func WithProject(p model.Project) Option {
	return func(s *MemoryStore) {
		s.projects[p.Name] = newMemoryProject(p)
		s.order = append(s.order, p.Name)
	}
}
