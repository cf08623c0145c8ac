package api

import (
	"strings"

	"github.com/okian/aqsync/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithPrefix mounts the addon routes below prefix, e.g.
// /api/addons/aquarium/1.0.0.
func WithPrefix(prefix string) Option {
	return func(s *Server) {
		s.prefix = strings.TrimRight(prefix, "/")
	}
}

// WithAPIKey requires X-Api-Key on the addon routes. Empty disables the
// check.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
