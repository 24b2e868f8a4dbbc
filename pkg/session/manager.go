package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/yeep/internal/clock"
	"github.com/marmos91/yeep/internal/logger"
	"github.com/marmos91/yeep/internal/telemetry"
	"github.com/marmos91/yeep/pkg/apiclient"
)

// DefaultRefreshMargin is how long before expiry a token is refreshed.
const DefaultRefreshMargin = 10 * time.Second

// ErrClosed is returned by lifecycle operations after Close.
var ErrClosed = errors.New("session manager closed")

const (
	triggerTimer  = "timer"
	triggerManual = "manual"
)

// Manager drives a Strategy through its lifecycle and keeps a bearer
// session alive: a single refresh timer is armed after every login,
// hydrate and refresh, and failed refreshes are retried with exponential
// backoff until one succeeds or the session ends.
//
// Lifecycle operations (Login, Hydrate, Logout, Refresh) must not overlap;
// a call issued while another is in flight fails with a StateError
// wrapping apiclient.ErrOperationInProgress.
type Manager struct {
	strategy Strategy
	clock    clock.Clock
	margin   time.Duration
	retry    RetryPolicy
	metrics  *Metrics

	mu            sync.Mutex
	busy          bool
	refreshing    bool
	refreshCancel context.CancelFunc
	refreshDone   chan struct{}
	timer         clock.Timer
	gen           uint64
	delay         time.Duration
	fireAt        time.Time
	backoff       backoff.BackOff
	failures      int
	listeners     map[int]Listener
	nextListener  int
	closed        bool
	done          chan struct{}
	watchers      sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithRefreshMargin sets how long before expiry a refresh fires.
func WithRefreshMargin(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d >= 0 {
			m.margin = d
		}
	}
}

// WithRetryPolicy sets the backoff applied to failed refreshes.
func WithRetryPolicy(p RetryPolicy) ManagerOption {
	return func(m *Manager) {
		m.retry = p.withDefaults()
	}
}

// WithMetrics records lifecycle metrics into metrics.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a manager for strategy.
func NewManager(strategy Strategy, opts ...ManagerOption) *Manager {
	m := &Manager{
		strategy:  strategy,
		clock:     clock.Real(),
		margin:    DefaultRefreshMargin,
		retry:     DefaultRetryPolicy(),
		listeners: make(map[int]Listener),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Strategy returns the session variant the manager drives.
func (m *Manager) Strategy() Strategy { return m.strategy }

// State returns a snapshot of the session.
func (m *Manager) State() State { return m.strategy.State() }

// Authenticated reports whether a session is established.
func (m *Manager) Authenticated() bool { return m.strategy.State().Authenticated() }

// NextRefresh returns the time left until the pending refresh fires.
func (m *Manager) NextRefresh() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer == nil {
		return 0, false
	}
	d := m.fireAt.Sub(m.clock.Now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// Failures returns the number of consecutive failed automatic refreshes.
func (m *Manager) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Subscribe registers l for lifecycle events and returns a function that
// removes it.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Login authenticates with creds. For bearer sessions the next refresh is
// scheduled margin before the token expires, or immediately if that moment
// has already passed.
func (m *Manager) Login(ctx context.Context, creds Credentials) (Payload, error) {
	if err := m.begin("login"); err != nil {
		return nil, err
	}
	defer m.end()

	ctx, span := telemetry.StartSessionSpan(ctx, telemetry.SpanSessionLogin, string(m.strategy.Type()))
	defer span.End()

	payload, err := m.strategy.Login(ctx, creds)
	m.metrics.recordLogin("login", err)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	state := m.strategy.State()
	m.mu.Lock()
	m.resetRetryLocked()
	if state.Kind == StateBearer {
		m.scheduleLocked(m.loginDelay(state.ExpiresAt))
	}
	m.mu.Unlock()

	logger.InfoCtx(ctx, "Session established",
		logger.AuthType(string(m.strategy.Type())),
		logger.KeyUser, creds.User)
	m.emit(Event{Type: EventLogin, State: state})
	return payload, nil
}

// Hydrate adopts a persisted bearer token and schedules its refresh.
func (m *Manager) Hydrate(req HydrateRequest) error {
	if err := m.begin("hydrate"); err != nil {
		return err
	}
	defer m.end()

	err := m.strategy.Hydrate(req)
	m.metrics.recordLogin("hydrate", err)
	if err != nil {
		return err
	}

	state := m.strategy.State()
	m.mu.Lock()
	m.resetRetryLocked()
	if state.Kind == StateBearer {
		m.scheduleLocked(m.refreshDelay(state.ExpiresAt))
	}
	m.mu.Unlock()

	logger.Info("Session hydrated",
		logger.AuthType(string(m.strategy.Type())),
		logger.ExpiresAt(state.ExpiresAt))
	m.emit(Event{Type: EventHydrate, State: state})
	return nil
}

// Logout ends the session. The refresh timer is canceled whatever the
// outcome of the remote call; its error is still returned. An automatic
// refresh in flight is aborted and awaited first, so the token destroyed
// is the one the session holds once that refresh settles.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.begin("logout"); err != nil {
		return err
	}
	defer m.end()

	ctx, span := telemetry.StartSessionSpan(ctx, telemetry.SpanSessionLogout, string(m.strategy.Type()))
	defer span.End()

	m.mu.Lock()
	m.cancelTimerLocked()
	m.resetRetryLocked()
	settled := m.refreshDone
	if m.refreshCancel != nil {
		m.refreshCancel()
	}
	m.mu.Unlock()

	if settled != nil {
		select {
		case <-settled:
		case <-ctx.Done():
			telemetry.RecordError(ctx, ctx.Err())
			return ctx.Err()
		}
	}

	err := m.strategy.Logout(ctx)

	m.metrics.recordLogout(err)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	logger.InfoCtx(ctx, "Session ended", logger.AuthType(string(m.strategy.Type())))
	m.emit(Event{Type: EventLogout, State: m.strategy.State()})
	return nil
}

// Refresh renews the session on demand. Bearer sessions reschedule their
// automatic refresh afterwards.
func (m *Manager) Refresh(ctx context.Context) error {
	if err := m.begin("refresh"); err != nil {
		return err
	}
	defer m.end()

	ctx, span := telemetry.StartSessionSpan(ctx, telemetry.SpanSessionRefresh,
		string(m.strategy.Type()), telemetry.Trigger(triggerManual))
	defer span.End()

	err := m.strategy.Refresh(ctx)
	m.metrics.recordRefresh(triggerManual, err)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	state := m.strategy.State()
	m.mu.Lock()
	m.resetRetryLocked()
	if state.Kind == StateBearer {
		m.scheduleLocked(m.refreshDelay(state.ExpiresAt))
	}
	m.mu.Unlock()

	m.emit(Event{Type: EventRefresh, State: state})
	return nil
}

// SetVisible reports whether the host considers the session in use. Going
// invisible cancels the pending refresh; becoming visible again refreshes a
// bearer session immediately if nothing is scheduled.
func (m *Manager) SetVisible(visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	if !visible {
		m.cancelTimerLocked()
		logger.Debug("Refresh suspended while not visible")
		return
	}

	if m.timer != nil || m.refreshing || m.busy {
		return
	}
	if m.strategy.State().Kind == StateBearer {
		m.scheduleLocked(0)
	}
}

// WatchVisibility feeds SetVisible from source until ctx ends, source is
// closed or the manager is closed. A nil source is a no-op.
func (m *Manager) WatchVisibility(ctx context.Context, source <-chan bool) {
	if source == nil {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.watchers.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.watchers.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case v, ok := <-source:
				if !ok {
					return
				}
				m.SetVisible(v)
			}
		}
	}()
}

// Close cancels the pending refresh, aborts an in-flight automatic refresh
// and stops visibility watchers. The session itself is left as is.
// Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancelTimerLocked()
	if m.refreshCancel != nil {
		m.refreshCancel()
	}
	close(m.done)
	m.mu.Unlock()

	m.watchers.Wait()
	return nil
}

// begin marks a lifecycle operation as in flight.
func (m *Manager) begin(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &apiclient.StateError{Op: op, Err: ErrClosed}
	}
	if m.busy || (op == "refresh" && m.refreshing) {
		return &apiclient.StateError{
			Op:     op,
			Err:    apiclient.ErrOperationInProgress,
			Reason: "wait for the pending session operation to finish",
		}
	}
	m.busy = true
	return nil
}

func (m *Manager) end() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

// loginDelay is margin before expiry, floored at zero.
func (m *Manager) loginDelay(expiresAt time.Time) time.Duration {
	d := expiresAt.Sub(m.clock.Now()) - m.margin
	if d < 0 {
		return 0
	}
	return d
}

// refreshDelay is margin before expiry, or the raw remaining time when
// expiry is closer than margin, floored at zero.
func (m *Manager) refreshDelay(expiresAt time.Time) time.Duration {
	dt := expiresAt.Sub(m.clock.Now())
	d := dt
	if dt >= m.margin {
		d = dt - m.margin
	}
	if d < 0 {
		return 0
	}
	return d
}

// scheduleLocked arms the refresh timer, replacing any pending one.
func (m *Manager) scheduleLocked(d time.Duration) {
	m.cancelTimerLocked()
	if m.closed {
		return
	}
	if d < 0 {
		d = 0
	}
	gen := m.gen
	m.delay = d
	m.fireAt = m.clock.Now().Add(d)
	m.timer = m.clock.AfterFunc(d, func() { m.fire(gen) })
	logger.Debug("Refresh scheduled", logger.Delay(d))
}

// cancelTimerLocked stops the pending timer. Bumping the generation turns
// a callback that already started into a no-op.
func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
}

func (m *Manager) resetRetryLocked() {
	m.backoff = nil
	m.failures = 0
}

// fire runs an automatic refresh for the timer armed at generation gen.
func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	if m.busy {
		// A lifecycle operation is in flight and will reschedule or cancel.
		m.scheduleLocked(m.retry.Floor)
		m.mu.Unlock()
		return
	}
	m.refreshing = true
	ctx, cancel := context.WithCancel(context.Background())
	m.refreshCancel = cancel
	settled := make(chan struct{})
	m.refreshDone = settled
	previous := m.delay
	attempt := m.failures + 1
	m.mu.Unlock()

	ctx, span := telemetry.StartSessionSpan(ctx, telemetry.SpanSessionRefresh,
		string(m.strategy.Type()), telemetry.Trigger(triggerTimer), telemetry.Attempt(attempt))
	err := m.strategy.Refresh(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	span.End()
	cancel()

	m.mu.Lock()
	m.refreshing = false
	m.refreshCancel = nil
	m.refreshDone = nil
	close(settled)
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}

	m.metrics.recordRefresh(triggerTimer, err)

	if err == nil {
		state := m.strategy.State()
		m.resetRetryLocked()
		m.scheduleLocked(m.refreshDelay(state.ExpiresAt))
		m.mu.Unlock()

		logger.Debug("Session refreshed", logger.ExpiresAt(state.ExpiresAt))
		m.emit(Event{Type: EventRefresh, State: state})
		return
	}

	if m.backoff == nil {
		m.backoff = m.retry.newBackOff(previous, m.clock)
	}
	retry := m.backoff.NextBackOff()
	m.failures++
	failures := m.failures
	m.scheduleLocked(retry)
	state := m.strategy.State()
	m.mu.Unlock()

	m.metrics.recordRetry(retry.Seconds())
	logger.Warn("Session refresh failed",
		logger.Err(err),
		logger.Attempt(failures),
		logger.Delay(retry))
	m.emit(Event{Type: EventError, State: state, Err: err, Retry: retry, Attempt: failures})
}

func (m *Manager) emit(e Event) {
	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(e)
	}
}
