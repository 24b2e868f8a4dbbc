package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/yeep/internal/logger"
	"github.com/marmos91/yeep/internal/telemetry"
)

// RequestIDHeader carries the per-call identifier sent to the service.
const RequestIDHeader = "X-Request-Id"

// HeaderProvider supplies the Authorization header for dispatched calls.
// The session strategies implement it.
type HeaderProvider interface {
	AuthHeader() (string, bool)
}

// CallOption customizes a single dispatched call.
type CallOption func(*callOptions)

type callOptions struct {
	cancelKey string
	header    http.Header
	skipAuth  bool
}

// WithCancelKey registers the call under key. Issuing another call with
// the same key cancels this one before the new call is sent.
func WithCancelKey(key string) CallOption {
	return func(o *callOptions) {
		o.cancelKey = key
	}
}

// WithHeader adds an extra request header to the call.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Add(key, value)
	}
}

func withoutAuth() CallOption {
	return func(o *callOptions) {
		o.skipAuth = true
	}
}

// envelope wraps every call with auth header injection, cancel key
// handling, tracing and error normalization.
type envelope struct {
	transport Transport
	cancels   *CancelRegistry
	metrics   *Metrics
	onError   func(error)

	mu      sync.RWMutex
	headers HeaderProvider
}

func (e *envelope) setHeaderProvider(p HeaderProvider) {
	e.mu.Lock()
	e.headers = p
	e.mu.Unlock()
}

func (e *envelope) authHeader() (string, bool) {
	e.mu.RLock()
	p := e.headers
	e.mu.RUnlock()
	if p == nil {
		return "", false
	}
	return p.AuthHeader()
}

// do sends one call and returns the decoded payload of a successful
// response. Every error it returns has been through normalization and was
// reported to the error observer.
func (e *envelope) do(ctx context.Context, operation, method, path string, body any, opts ...CallOption) (json.RawMessage, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.cancelKey != "" {
		var release func()
		ctx, release = e.cancels.Issue(ctx, o.cancelKey)
		defer release()
	}

	requestID := uuid.NewString()
	ctx, span := telemetry.StartOperationSpan(ctx, operation, method, path, telemetry.RequestID(requestID))
	defer span.End()
	if o.cancelKey != "" {
		span.SetAttributes(telemetry.CancelKey(o.cancelKey))
	}

	lc := logger.NewLogContext(operation, requestID).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	header := make(http.Header, len(o.header)+2)
	for k, vs := range o.header {
		header[k] = append([]string(nil), vs...)
	}
	header.Set(RequestIDHeader, requestID)
	if !o.skipAuth {
		if v, ok := e.authHeader(); ok {
			header.Set("Authorization", v)
		}
	}
	telemetry.InjectHeaders(ctx, header)

	if body == nil && method != http.MethodGet && method != http.MethodHead {
		body = struct{}{}
	}

	logger.DebugCtx(ctx, "Dispatching call", logger.KeyMethod, method, logger.KeyPath, path)

	start := time.Now()
	resp, err := e.transport.Send(ctx, &Request{
		Method: method,
		Path:   path,
		Header: header,
		Body:   body,
	})

	var payload json.RawMessage
	if err == nil {
		telemetry.SetAttributes(ctx, telemetry.HTTPStatus(resp.StatusCode))
		payload, err = normalize(method+" "+path, resp)
	}
	e.metrics.recordRequest(operation, time.Since(start).Seconds(), err)

	if err != nil {
		telemetry.RecordError(ctx, err)
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			telemetry.SetAttributes(ctx, telemetry.ErrorCode(svcErr.Code))
		}
		if IsCanceled(err) {
			logger.DebugCtx(ctx, "Call canceled", logger.KeyCancelKey, o.cancelKey)
		} else {
			logger.DebugCtx(ctx, "Call failed", logger.Err(err), logger.DurationMs(start))
		}
		e.report(err)
		return nil, err
	}

	logger.DebugCtx(ctx, "Call succeeded", logger.Status(resp.StatusCode), logger.DurationMs(start))
	return payload, nil
}

func (e *envelope) report(err error) {
	if e.onError != nil {
		e.onError(err)
	}
}

// responseEnvelope is the {ok, error} wrapper every service reply carries.
type responseEnvelope struct {
	OK    json.RawMessage `json:"ok"`
	Error *ServiceError   `json:"error"`
}

// normalize turns a raw response into a payload or a typed error. A
// well-formed {ok:false, error:{...}} body yields *ServiceError whatever
// the HTTP status; any other failure, ok:false without an error object
// included, yields *TransportError.
func normalize(op string, resp *Response) (json.RawMessage, error) {
	body := bytes.TrimSpace(resp.Body)

	var (
		env       responseEnvelope
		decodeErr error
	)
	if len(body) > 0 {
		decodeErr = json.Unmarshal(body, &env)
	}

	if decodeErr == nil && bytes.Equal(bytes.TrimSpace(env.OK), []byte("false")) {
		if env.Error != nil {
			return nil, env.Error
		}
		return nil, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("malformed failure envelope: %s", snippet(body)),
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", snippet(body)),
		}
	}

	if decodeErr != nil {
		return nil, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode response: %w", decodeErr),
		}
	}

	if len(body) == 0 {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// snippet shortens a response body for error messages.
func snippet(body []byte) string {
	const limit = 256
	if len(body) == 0 {
		return "empty body"
	}
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
