package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/marmos91/yeep/internal/logger"
	"github.com/marmos91/yeep/internal/telemetry"
)

// DefaultSchemaPath is where the service publishes its schema document.
const DefaultSchemaPath = "/api/docs"

const schemaKey = "schema"

// Dispatcher resolves the service's operations from its schema document
// and dispatches calls to them. The operation table is built once and
// shared; a failed load is not cached.
type Dispatcher struct {
	env            *envelope
	schemaPath     string
	callableMethod string

	group singleflight.Group
	table atomic.Pointer[OperationTable]

	mu  sync.Mutex
	gen uint64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSchemaPath overrides the schema document path.
func WithSchemaPath(path string) DispatcherOption {
	return func(d *Dispatcher) {
		if path != "" {
			d.schemaPath = path
		}
	}
}

// WithCallableMethod selects which schema entries become operations.
// Defaults to POST.
func WithCallableMethod(method string) DispatcherOption {
	return func(d *Dispatcher) {
		if method != "" {
			d.callableMethod = strings.ToUpper(method)
		}
	}
}

// WithErrorObserver registers fn to be called with every normalized error.
func WithErrorObserver(fn func(error)) DispatcherOption {
	return func(d *Dispatcher) {
		d.env.onError = fn
	}
}

// WithMetrics records call and schema metrics into m.
func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.env.metrics = m
	}
}

// WithHeaderProvider sets the source of the Authorization header.
func WithHeaderProvider(p HeaderProvider) DispatcherOption {
	return func(d *Dispatcher) {
		d.env.headers = p
	}
}

// NewDispatcher creates a dispatcher sending through transport. Nothing is
// fetched until the first Resolve.
func NewDispatcher(transport Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		env: &envelope{
			transport: transport,
			cancels:   NewCancelRegistry(),
		},
		schemaPath:     DefaultSchemaPath,
		callableMethod: http.MethodPost,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetHeaderProvider replaces the source of the Authorization header. The
// session is usually created after the dispatcher it calls through.
func (d *Dispatcher) SetHeaderProvider(p HeaderProvider) {
	d.env.setHeaderProvider(p)
}

// Resolve returns the operation table, fetching the schema document on
// first use. Concurrent callers share one fetch and receive the same
// table. The shared fetch is not canceled when one caller gives up; each
// caller still returns as soon as its own ctx ends.
func (d *Dispatcher) Resolve(ctx context.Context) (*OperationTable, error) {
	if t := d.table.Load(); t != nil {
		return t, nil
	}

	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(schemaKey, func() (any, error) {
		if t := d.table.Load(); t != nil {
			return t, nil
		}
		return d.load(fetchCtx, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*OperationTable), nil
	case <-ctx.Done():
		return nil, canceledError(http.MethodGet+" "+d.schemaPath, ctx)
	}
}

func (d *Dispatcher) load(ctx context.Context, gen uint64) (*OperationTable, error) {
	payload, err := d.env.do(ctx, telemetry.SpanSchemaFetch, http.MethodGet, d.schemaPath, nil, withoutAuth())
	if err != nil {
		d.env.metrics.recordSchemaFetch(err, 0)
		logger.Warn("Schema fetch failed", logger.Path(d.schemaPath), logger.Err(err))
		return nil, err
	}

	schema, err := ParseSchema(payload)
	if err == nil {
		var t *OperationTable
		t, err = buildTable(schema.Version, schema.Callable(d.callableMethod), d.env)
		if err == nil {
			d.env.metrics.recordSchemaFetch(nil, t.Len())
			d.store(t, gen)
			logger.Debug("Operation table built",
				logger.KeySchemaVersion, t.Version(),
				logger.KeyOperations, t.Len())
			return t, nil
		}
	}

	err = &TransportError{Op: http.MethodGet + " " + d.schemaPath, Err: err}
	d.env.metrics.recordSchemaFetch(err, 0)
	d.env.report(err)
	return nil, err
}

// store caches t unless Reset ran since the fetch started.
func (d *Dispatcher) store(t *OperationTable, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen == gen {
		d.table.Store(t)
	}
}

// Reset drops the cached table so the next Resolve fetches the schema
// again.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.gen++
	d.table.Store(nil)
	d.mu.Unlock()
	d.group.Forget(schemaKey)
}

// Call resolves the table and invokes the operation id.
func (d *Dispatcher) Call(ctx context.Context, id string, args any, opts ...CallOption) (json.RawMessage, error) {
	t, err := d.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	op, ok := t.Operation(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, id)
	}
	return op.Call(ctx, args, opts...)
}

// Version returns the schema version, resolving the table if needed.
func (d *Dispatcher) Version(ctx context.Context) (string, error) {
	t, err := d.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return t.Version(), nil
}

// Cancel aborts the in-flight call registered under key.
func (d *Dispatcher) Cancel(key string) bool {
	return d.env.cancels.Cancel(key)
}

// CancelAll aborts every in-flight call that carries a cancel key.
func (d *Dispatcher) CancelAll() {
	d.env.cancels.CancelAll()
}
