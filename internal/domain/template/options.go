package template

import "github.com/okian/aqsync/pkg/logger"

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithFolderLikeTypes sets the AYON folder types emitted as Group items.
func WithFolderLikeTypes(types ...string) Option {
	return func(s *Synthesizer) {
		if len(types) == 0 {
			return
		}
		s.folderLike = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.folderLike[t] = struct{}{}
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}
