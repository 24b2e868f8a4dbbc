package telemetry

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// useRecorder routes spans into an in-memory recorder for the duration of
// the test.
func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	UseTracerProvider(tp)
	t.Cleanup(func() {
		UseTracerProvider(nil)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "yeepctl", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.True(t, cfg.Propagate)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())

	_, span := StartSpan(ctx, "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestTracerWithoutInit(t *testing.T) {
	UseTracerProvider(nil)
	require.NotNil(t, Tracer())
	assert.Empty(t, TraceID(context.Background()))
	assert.Empty(t, SpanID(context.Background()))
}

func TestStartOperationSpan(t *testing.T) {
	rec := useRecorder(t)

	ctx, span := StartOperationSpan(context.Background(), "widget.info", "POST", "/api/widget.info", RequestID("req-1"))
	assert.NotEmpty(t, TraceID(ctx))
	assert.NotEmpty(t, SpanID(ctx))
	SetAttributes(ctx, HTTPStatus(200))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "widget.info", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())

	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "widget.info", attrs[AttrOperation].AsString())
	assert.Equal(t, "POST", attrs[AttrHTTPMethod].AsString())
	assert.Equal(t, "/api/widget.info", attrs[AttrHTTPPath].AsString())
	assert.Equal(t, "req-1", attrs[AttrRequestID].AsString())
	assert.Equal(t, int64(200), attrs[AttrHTTPStatus].AsInt64())
}

func TestStartSessionSpan(t *testing.T) {
	rec := useRecorder(t)

	ctx, span := StartSessionSpan(context.Background(), SpanSessionRefresh, "bearer", Trigger("timer"), Attempt(2))
	AddEvent(ctx, "token.replaced")
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanSessionRefresh, spans[0].Name())
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "bearer", attrs[AttrAuthType].AsString())
	assert.Equal(t, "timer", attrs[AttrTrigger].AsString())
	assert.Equal(t, int64(2), attrs[AttrAttempt].AsInt64())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "token.replaced", spans[0].Events()[0].Name)
}

func TestRecordError(t *testing.T) {
	rec := useRecorder(t)

	ctx, span := StartSpan(context.Background(), "failing")
	RecordError(ctx, nil)
	RecordError(ctx, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
}

func TestInjectHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Run("DisabledDoesNothing", func(t *testing.T) {
		UseTracerProvider(nil)
		h := http.Header{}
		InjectHeaders(context.Background(), h)
		assert.Empty(t, h)
	})

	t.Run("EnabledWritesTraceparent", func(t *testing.T) {
		useRecorder(t)
		mu.Lock()
		propagate = true
		mu.Unlock()
		t.Cleanup(func() {
			mu.Lock()
			propagate = false
			mu.Unlock()
		})

		ctx, span := StartSpan(context.Background(), "outgoing")
		defer span.End()

		h := http.Header{}
		InjectHeaders(ctx, h)
		assert.Contains(t, h.Get("traceparent"), TraceID(ctx))
	})
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileInuseSpace}, types)

	types, err = parseProfileTypes([]string{"goroutines", " Mutex_Count "})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileGoroutines, pyroscope.ProfileMutexCount}, types)

	_, err = parseProfileTypes([]string{"heap"})
	assert.ErrorContains(t, err, `invalid profile type "heap"`)
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(DefaultProfilingConfig())
	require.NoError(t, err)
	assert.NoError(t, shutdown())
}
