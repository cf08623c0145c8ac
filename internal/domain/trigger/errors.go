package trigger

import "errors"

// Sentinel kinds for trigger errors.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNotPaired       = errors.New("project is not paired with an aquarium project")
	ErrAlreadyPaired   = errors.New("project is already paired with an aquarium project")
)
