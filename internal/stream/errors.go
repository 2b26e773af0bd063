package stream

import (
	"errors"
	"fmt"
	"net/http"
)

// Class partitions every stream failure into exactly one bucket. Only
// retryable classes ever schedule a reconnect.
type Class int

const (
	// ClassTransient covers 5xx responses and generic network drops.
	ClassTransient Class = iota
	// ClassStale is a heartbeat timeout on an open connection.
	ClassStale
	// ClassAuth is a 401/403. Never retried.
	ClassAuth
	// ClassNotFound is a 404; the run is gone or already finished. Never retried.
	ClassNotFound
	// ClassSetup covers malformed URLs, credential-fetch failures and other
	// 4xx responses. Retried under the normal budget, then fatal.
	ClassSetup
	// ClassBudget is emitted once the retry budget is exhausted. Fatal.
	ClassBudget
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassStale:
		return "stale"
	case ClassAuth:
		return "auth"
	case ClassNotFound:
		return "not_found"
	case ClassSetup:
		return "setup"
	case ClassBudget:
		return "budget_exhausted"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this class schedule a reconnect.
func (c Class) Retryable() bool {
	switch c {
	case ClassTransient, ClassStale, ClassSetup:
		return true
	default:
		return false
	}
}

// Error is the failure type surfaced through OnError.
type Error struct {
	Class   Class
	Message string
	Status  int // HTTP status when applicable, 0 otherwise
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream: %s: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("stream: %s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AppError is an application-level error reported inside the stream (status
// "error" or "warning" frames). The run keeps streaming after one of these;
// it is surfaced through OnError for display only.
type AppError struct {
	Message string
}

func (e *AppError) Error() string {
	return "stream: agent reported error: " + e.Message
}

// ClassOf extracts the failure class from an error returned via OnError.
// Non-stream errors report ClassTransient.
func ClassOf(err error) Class {
	var se *Error
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassTransient
}

// classifyHTTPStatus maps a non-200 response on the stream endpoint to a
// failure class.
func classifyHTTPStatus(code int) Class {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ClassAuth
	case code == http.StatusNotFound:
		return ClassNotFound
	case code >= 500:
		return ClassTransient
	default:
		return ClassSetup
	}
}
