package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCanceled marks a request that was aborted through its context or
	// superseded by a newer request under the same cancel key.
	ErrCanceled = errors.New("request canceled")
	// ErrNotAuthenticated indicates an operation that needs an active session.
	ErrNotAuthenticated = errors.New("no active session")
	// ErrAlreadyAuthenticated indicates a session already exists.
	ErrAlreadyAuthenticated = errors.New("session already exists")
	// ErrOperationInProgress indicates an overlapping lifecycle operation.
	ErrOperationInProgress = errors.New("session operation already in progress")
	// ErrUnsupported indicates the active session variant lacks a capability.
	ErrUnsupported = errors.New("operation not supported by this session type")
	// ErrUnknownOperation indicates an identifier missing from the schema.
	ErrUnknownOperation = errors.New("unknown operation")
)

// ServiceError is a structured failure reported by the remote service
// through the {ok: false, error: {...}} response envelope.
type ServiceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%d: %s", e.Code, e.Message)
	}
	return e.Message
}

// IsAuthError returns true if this is an authentication error.
func (e *ServiceError) IsAuthError() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

// IsNotFound returns true if this is a not found error.
func (e *ServiceError) IsNotFound() bool {
	return e.Code == http.StatusNotFound
}

// IsConflict returns true if this is a conflict error.
func (e *ServiceError) IsConflict() bool {
	return e.Code == http.StatusConflict
}

// IsValidationError returns true if the service rejected the request payload.
func (e *ServiceError) IsValidationError() bool {
	return e.Code == http.StatusBadRequest
}

// FirstDetail returns the first entry of Details, which for validation
// errors describes the offending property.
func (e *ServiceError) FirstDetail() (any, bool) {
	if len(e.Details) == 0 {
		return nil, false
	}
	return e.Details[0], true
}

// TransportError covers network failures, timeouts, cancellations and
// responses that do not follow the service envelope.
type TransportError struct {
	// Op is "<METHOD> <path>" of the failed request.
	Op string
	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Canceled reports whether the request was aborted by its caller.
func (e *TransportError) Canceled() bool {
	return errors.Is(e.Err, ErrCanceled)
}

// Timeout reports whether the request ran out of time.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// ValidationError reports malformed caller input. Field names the first
// offending property.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %q property: %s", e.Field, e.Reason)
}

// StateError reports an operation invoked in the wrong lifecycle state.
type StateError struct {
	Op     string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *StateError) Error() string {
	msg := e.Op
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Reason != "" {
		msg += "; " + e.Reason
	}
	return msg
}

// Unwrap returns the sentinel describing the state violation.
func (e *StateError) Unwrap() error {
	return e.Err
}

// DecodeError reports a session token whose expiry claim cannot be read.
type DecodeError struct {
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode session token: %v", e.Err)
}

// Unwrap returns the underlying parse error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err stems from a canceled request.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// canceledError converts a context failure into a TransportError. Deadline
// expiry stays a timeout; everything else counts as a cancellation.
func canceledError(op string, ctx context.Context) *TransportError {
	cause := context.Cause(ctx)
	if errors.Is(cause, context.DeadlineExceeded) {
		return &TransportError{Op: op, Err: cause}
	}
	if errors.Is(cause, ErrCanceled) {
		return &TransportError{Op: op, Err: cause}
	}
	return &TransportError{Op: op, Err: fmt.Errorf("%w: %w", ErrCanceled, cause)}
}
