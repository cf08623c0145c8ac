package ayon

import (
	"errors"
	"fmt"
)

// Sentinel kinds for AYON client errors.
var (
	ErrUnauthorized = errors.New("ayon rejected the api key")
	ErrNotFound     = errors.New("ayon resource not found")
	ErrConflict     = errors.New("ayon resource already exists")
)

// StatusError is an unexpected HTTP answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ayon %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}
