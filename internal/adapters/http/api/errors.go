package api

import (
	"errors"
	"net/http"

	"github.com/okian/aqsync/internal/adapters/aquarium"
	"github.com/okian/aqsync/internal/adapters/repository"
	service "github.com/okian/aqsync/internal/app"
	"github.com/okian/aqsync/internal/domain/anatomy"
	"github.com/okian/aqsync/internal/domain/reconcile"
	"github.com/okian/aqsync/internal/domain/trigger"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is an API failure: the operation, its kind and the cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Kind != nil && e.Err != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind for op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind wraps err as kind for op.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap attaches op to err. Nil stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

type errorClass struct {
	status int
	code   string
	kinds  []error
}

var errorClasses = []errorClass{
	{http.StatusBadRequest, "bad_request", []error{
		ErrBadRequest, service.ErrBadRequest, repository.ErrInvalidName,
	}},
	{http.StatusUnauthorized, "unauthorized", []error{ErrUnauthorized}},
	{http.StatusNotFound, "not_found", []error{
		ErrNotFound,
		service.ErrEventNotFound,
		trigger.ErrProjectNotFound,
		reconcile.ErrProjectNotFound,
		repository.ErrProjectNotFound,
		anatomy.ErrProjectNotFound,
	}},
	{http.StatusConflict, "conflict", []error{
		ErrConflict,
		repository.ErrProjectExists,
		trigger.ErrAlreadyPaired,
		trigger.ErrNotPaired,
		reconcile.ErrNotPaired,
	}},
	{http.StatusBadGateway, "upstream_error", []error{
		aquarium.ErrAuthentication, aquarium.ErrNotConnected,
	}},
	{http.StatusServiceUnavailable, "unavailable", []error{service.ErrNotStarted}},
}

// classify maps err to an HTTP status and an error code.
func classify(err error) (int, string) {
	for _, class := range errorClasses {
		for _, kind := range class.kinds {
			if errors.Is(err, kind) {
				return class.status, class.code
			}
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
