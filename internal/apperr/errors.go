// Package apperr holds the client's error taxonomy. Every typed error matches
// one of the sentinels below through errors.Is, so callers can branch on the
// class of failure without caring which component produced it.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("invalid input")
	ErrPrecondition    = errors.New("precondition not met")
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("file too large")
	ErrTransport       = errors.New("transport failure")
	ErrBusy            = errors.New("operation already in flight")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrAuthPending     = errors.New("authentication not resolved yet")
)

// ValidationError rejects user input before any state mutation or network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PreconditionError means the session is not in the right shape yet.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// UnsupportedTypeError is a policy rejection on the declared media type.
type UnsupportedTypeError struct {
	MediaType string
	Allowed   []string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported media type %q (allowed: %v)", e.MediaType, e.Allowed)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }

// TooLargeError is a policy rejection on byte size.
type TooLargeError struct {
	Size  int64
	Limit int64
	// Human is a preformatted "4.2 MB > 5.0 MB" string for display.
	Human string
}

func (e *TooLargeError) Error() string {
	if e.Human != "" {
		return "file too large: " + e.Human
	}
	return fmt.Sprintf("file too large: %d bytes exceeds %d", e.Size, e.Limit)
}

func (e *TooLargeError) Unwrap() error { return ErrTooLarge }

// TransportError wraps network failures and non-2xx responses from the orchestrator.
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("orchestrator: %s: %v", e.Op, ErrTransport)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel and the lower-level cause.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// Unauthorized reports whether the server rejected the credentials or token.
func (e *TransportError) Unauthorized() bool {
	return e.Status == 401 || e.Status == 403
}

// BusyError rejects a second operation of the same family while one is outstanding.
type BusyError struct {
	Op string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrBusy)
}

func (e *BusyError) Unwrap() error { return ErrBusy }
