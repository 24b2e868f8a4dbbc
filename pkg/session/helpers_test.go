package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/yeep/internal/clock"
	"github.com/marmos91/yeep/pkg/apiclient"
)

var testEpoch = time.Unix(1_700_000_000, 0)

type handlerFunc func(ctx context.Context, args any) (any, error)

// fakeCaller answers operations from per-identifier handlers and records
// every call.
type fakeCaller struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    []string
	args     []any
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{handlers: make(map[string]handlerFunc)}
}

func (f *fakeCaller) handle(id string, h handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[id] = h
}

func (f *fakeCaller) Call(ctx context.Context, id string, args any, _ ...apiclient.CallOption) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.args = append(f.args, args)
	h := f.handlers[id]
	f.mu.Unlock()

	if h == nil {
		return nil, fmt.Errorf("%w: %s", apiclient.ErrUnknownOperation, id)
	}
	out, err := h(ctx, args)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return json.Marshal(out)
}

func (f *fakeCaller) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == id {
			n++
		}
	}
	return n
}

func (f *fakeCaller) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCaller) lastArgs(id string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i] == id {
			return f.args[i]
		}
	}
	return nil
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func tokenExpiring(t *testing.T, exp time.Time) string {
	t.Helper()
	return signToken(t, jwt.MapClaims{"sub": "alice", "exp": exp.Unix()})
}

// issueFor answers issueToken and refreshToken with a token valid for ttl
// from the fake clock's current time.
func issueFor(t *testing.T, clk *clock.Fake, ttl time.Duration) handlerFunc {
	return func(context.Context, any) (any, error) {
		return map[string]any{"token": tokenExpiring(t, clk.Now().Add(ttl))}, nil
	}
}

func failWith(code int, msg string) handlerFunc {
	return func(context.Context, any) (any, error) {
		return nil, &apiclient.ServiceError{Code: code, Message: msg}
	}
}

func ok(context.Context, any) (any, error) {
	return map[string]any{"ok": true}, nil
}

// eventLog collects events delivered to a listener.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) listen(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func (l *eventLog) last() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return Event{}
	}
	return l.events[len(l.events)-1]
}

var noJitter = RetryPolicy{Floor: DefaultRetryFloor, MaxInterval: DefaultRetryMaxInterval, Jitter: 0}

// newBearerManager returns a bearer manager on a fake clock whose caller
// issues one-minute tokens.
func newBearerManager(t *testing.T, opts ...ManagerOption) (*Manager, *fakeCaller, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testEpoch)
	caller := newFakeCaller()
	caller.handle(OpIssueToken, issueFor(t, clk, time.Minute))
	caller.handle(OpRefreshToken, issueFor(t, clk, time.Minute))
	caller.handle(OpDestroyToken, ok)

	opts = append([]ManagerOption{WithClock(clk), WithRetryPolicy(noJitter)}, opts...)
	m := NewManager(NewBearer(caller), opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m, caller, clk
}

var alice = Credentials{User: "alice", Password: "secret"}
