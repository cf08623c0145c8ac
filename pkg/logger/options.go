package logger

// Option configures Init.
type Option func(*options)

type options struct {
	format     string
	level      string
	stdout     bool
	file       string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	compress   bool
}

// WithFormat selects the handler: "text" or "json".
func WithFormat(format string) Option {
	return func(o *options) {
		if format != "" {
			o.format = format
		}
	}
}

// WithLevel sets the initial level.
func WithLevel(level string) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithStdout toggles writing to stdout.
func WithStdout(enabled bool) Option {
	return func(o *options) {
		o.stdout = enabled
	}
}

// WithFile also writes logs to a rotating file.
func WithFile(path string, maxSizeMB, maxBackups, maxAgeDays int, compress bool) Option {
	return func(o *options) {
		o.file = path
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
		o.maxAgeDays = maxAgeDays
		o.compress = compress
	}
}
