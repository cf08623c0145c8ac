package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is matched by every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps failures reading the file or the environment.
	ErrLoadConfig = errors.New("load config failed")
	// ErrUnknownDriver is a storage driver aqsync does not ship.
	ErrUnknownDriver = errors.New("unknown driver")
)

// FieldError names the configuration key that failed validation. It matches
// ErrInvalidConfig and, when set, Err.
type FieldError struct {
	Key    string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Key, e.Reason)
}

func (e *FieldError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidConfig}
	}
	return []error{ErrInvalidConfig, e.Err}
}

func invalid(key, reason string) error {
	return &FieldError{Key: key, Reason: reason}
}

func unknownDriver(key, driver string) error {
	return &FieldError{Key: key, Reason: fmt.Sprintf("%q is not one of the supported drivers", driver), Err: ErrUnknownDriver}
}
