package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently so client logs can be aggregated and queried.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Dispatch
	// ========================================================================
	KeyOperation     = "operation"      // Dotted operation identifier (session.issueToken)
	KeyMethod        = "method"         // HTTP method
	KeyPath          = "path"           // Request path
	KeyRequestID     = "request_id"     // X-Request-Id sent with the call
	KeyCancelKey     = "cancel_key"     // Logical key of a cancellable request
	KeyStatus        = "status"         // HTTP status code
	KeySchemaVersion = "schema_version" // Version advertised by the schema document
	KeyOperations    = "operations"     // Number of operations in a table

	// ========================================================================
	// Session
	// ========================================================================
	KeyAuthType  = "auth_type"  // bearer or cookie
	KeyState     = "state"      // Session state name
	KeyExpiresAt = "expires_at" // Token expiry
	KeyDelay     = "delay"      // Scheduled refresh delay
	KeyAttempt   = "attempt"    // Consecutive refresh failures
	KeyServer    = "server"     // Base URL of the remote service
	KeyUser      = "user"       // Login identity
	KeyEvent     = "event"      // Session lifecycle event

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Service error code
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for a dotted operation identifier
func Operation(id string) slog.Attr {
	return slog.String(KeyOperation, id)
}

// Method returns a slog.Attr for the HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path returns a slog.Attr for the request path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// RequestID returns a slog.Attr for the request identifier
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Status returns a slog.Attr for an HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// AuthType returns a slog.Attr for the session variant
func AuthType(t string) slog.Attr {
	return slog.String(KeyAuthType, t)
}

// ExpiresAt returns a slog.Attr for a token expiry
func ExpiresAt(t time.Time) slog.Attr {
	return slog.Time(KeyExpiresAt, t)
}

// Delay returns a slog.Attr for a scheduling delay
func Delay(d time.Duration) slog.Attr {
	return slog.Duration(KeyDelay, d)
}

// Event returns a slog.Attr for a session lifecycle event
func Event(name string) slog.Attr {
	return slog.String(KeyEvent, name)
}

// Attempt returns a slog.Attr for a retry counter
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Err returns a slog.Attr for an error; nil errors produce an empty attr
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for the elapsed time since start
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}
