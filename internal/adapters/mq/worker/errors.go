package worker

import "errors"

// Sentinel kinds for scheduler errors.
var (
	ErrBadPayload = errors.New("malformed job payload")
)
