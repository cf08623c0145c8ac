package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrEventNotFound = errors.New("sync event not found")
	ErrBadRequest    = errors.New("bad request")
	ErrEmptyImport   = errors.New("aquarium import created nothing")
)
