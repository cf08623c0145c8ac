package leecher

import "errors"

var (
	// ErrMissingCredentials is returned by Run without a bot key or secret.
	ErrMissingCredentials = errors.New("missing aquarium bot key or secret")
	// ErrStopped is returned by Run after Shutdown.
	ErrStopped = errors.New("leecher stopped")
)
