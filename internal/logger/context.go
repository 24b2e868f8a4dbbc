package logger

import (
	"context"
	"time"
)

type logContextKey struct{}

// LogContext identifies one dispatched call. The *Ctx helpers prefix its
// fields to every record logged under a context carrying it.
type LogContext struct {
	TraceID   string
	SpanID    string
	Operation string // dotted operation id
	RequestID string // X-Request-Id sent to the service
	StartTime time.Time
}

// NewLogContext starts a LogContext for operation now.
func NewLogContext(operation, requestID string) *LogContext {
	return &LogContext{Operation: operation, RequestID: requestID, StartTime: time.Now()}
}

func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey{}, lc)
}

// FromContext returns the LogContext of ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey{}).(*LogContext)
	return lc
}

func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithTrace returns a copy carrying the given span identity.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID, c.SpanID = traceID, spanID
	}
	return c
}

// DurationMs is the time since StartTime in milliseconds, 0 if unset.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}
