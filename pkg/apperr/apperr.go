// Package apperr defines the error taxonomy shared by the stores, the core
// services and the HTTP layer. Errors are wrapped with fmt.Errorf("...: %w")
// and classified with errors.Is.
package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrTransient    = errors.New("temporarily unavailable")
	ErrInvalid      = errors.New("invalid")
	ErrUnauthorized = errors.New("unauthorized")
)

// NotFound returns an ErrNotFound for the named entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// Invalid returns an ErrInvalid carrying a user-facing message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalid)
}

// Conflict returns an ErrConflict carrying a user-facing message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// transientError keeps the original cause reachable while also matching
// ErrTransient.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{e.err, ErrTransient} }

// Classify marks connection-level failures as ErrTransient and returns every
// other error unchanged. nil stays nil.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	if IsTransient(err) {
		return &transientError{err: err}
	}
	return err
}

// IsTransient reports whether err looks like a retryable infrastructure failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Message returns the part of err safe to show to a client: the wrapped
// chain for domain errors, a generic text for everything else.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrTransient):
		return "service temporarily unavailable"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalid), errors.Is(err, ErrUnauthorized):
		return err.Error()
	default:
		return "internal server error"
	}
}
