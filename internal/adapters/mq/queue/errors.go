package queue

import "errors"

// Sentinel kinds for job store errors.
var (
	ErrNotFound      = errors.New("event not found")
	ErrDuplicateHash = errors.New("event hash already exists")
	ErrClosed        = errors.New("job store closed")
	ErrUnknownDriver = errors.New("unknown job store driver")
)
