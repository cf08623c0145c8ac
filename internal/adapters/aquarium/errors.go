package aquarium

import (
	"errors"
	"fmt"
)

// Sentinel kinds for Aquarium client errors.
var (
	ErrAuthentication = errors.New("aquarium authentication failed")
	ErrNotConnected   = errors.New("aquarium client is not signed in")
	ErrNotFound       = errors.New("aquarium item not found")
)

// StatusError is an unexpected HTTP answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("aquarium %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}
