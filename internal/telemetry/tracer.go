package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys attached to client spans. HTTP keys follow the
// OpenTelemetry semantic conventions; the rest use the "yeep." prefix.
const (
	AttrHTTPMethod = "http.request.method"
	AttrHTTPPath   = "url.path"
	AttrHTTPStatus = "http.response.status_code"
	AttrServerAddr = "server.address"

	AttrOperation     = "yeep.operation"
	AttrRequestID     = "yeep.request_id"
	AttrCancelKey     = "yeep.cancel_key"
	AttrSchemaVersion = "yeep.schema.version"
	AttrErrorCode     = "yeep.error.code"

	AttrAuthType = "yeep.session.auth_type"
	AttrTrigger  = "yeep.session.trigger"
	AttrAttempt  = "yeep.session.attempt"
)

// Span names for internal client operations. Dispatched calls use the
// operation identifier itself as span name.
const (
	SpanSchemaFetch    = "yeep.schema.fetch"
	SpanSessionLogin   = "yeep.session.login"
	SpanSessionLogout  = "yeep.session.logout"
	SpanSessionRefresh = "yeep.session.refresh"
	SpanSessionHydrate = "yeep.session.hydrate"
)

// HTTPMethod returns an attribute for the HTTP request method
func HTTPMethod(m string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, m)
}

// HTTPPath returns an attribute for the request path
func HTTPPath(p string) attribute.KeyValue {
	return attribute.String(AttrHTTPPath, p)
}

// HTTPStatus returns an attribute for the response status code
func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

// ServerAddr returns an attribute for the remote service address
func ServerAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrServerAddr, addr)
}

// Operation returns an attribute for a dotted operation identifier
func Operation(id string) attribute.KeyValue {
	return attribute.String(AttrOperation, id)
}

// RequestID returns an attribute for the X-Request-Id of a call
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// CancelKey returns an attribute for the logical cancel key of a call
func CancelKey(key string) attribute.KeyValue {
	return attribute.String(AttrCancelKey, key)
}

// SchemaVersion returns an attribute for the schema document version
func SchemaVersion(v string) attribute.KeyValue {
	return attribute.String(AttrSchemaVersion, v)
}

// ErrorCode returns an attribute for a service error code
func ErrorCode(code int) attribute.KeyValue {
	return attribute.Int(AttrErrorCode, code)
}

// AuthType returns an attribute for the session variant
func AuthType(t string) attribute.KeyValue {
	return attribute.String(AttrAuthType, t)
}

// Trigger returns an attribute describing what started a refresh
// (timer, visibility, manual).
func Trigger(t string) attribute.KeyValue {
	return attribute.String(AttrTrigger, t)
}

// Attempt returns an attribute for the consecutive failure count
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// StartOperationSpan starts a client span for a dispatched operation.
func StartOperationSpan(ctx context.Context, operation, method, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Operation(operation),
		HTTPMethod(method),
		HTTPPath(path),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(allAttrs...),
	)
}

// StartSessionSpan starts an internal span for a session lifecycle step.
func StartSessionSpan(ctx context.Context, name, authType string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{AuthType(authType)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
