// Package yeep is the entry point of the client runtime: it wires a
// transport, the schema-driven operation dispatcher and a session manager
// from a single Config.
//
// Example:
//
//	client, err := yeep.New(yeep.DefaultConfig("https://api.example.com"))
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	if _, err := client.Session().Login(ctx, session.Credentials{User: "alice", Password: "secret"}); err != nil {
//		return err
//	}
//	info, err := apiclient.Invoke[WidgetInfo](ctx, client, "widget.info", map[string]string{"id": "w1"})
package yeep

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/yeep/internal/clock"
	"github.com/marmos91/yeep/internal/logger"
	"github.com/marmos91/yeep/pkg/apiclient"
	"github.com/marmos91/yeep/pkg/session"
)

// Client bundles a dispatcher and the session that authenticates it.
// It implements apiclient.Caller.
type Client struct {
	cfg        Config
	dispatcher *apiclient.Dispatcher
	strategy   session.Strategy
	session    *session.Manager
}

// Option customizes how New assembles a Client.
type Option func(*options)

type options struct {
	transport  apiclient.Transport
	registerer prometheus.Registerer
	clock      clock.Clock
}

// WithTransport replaces the default HTTP transport.
func WithTransport(t apiclient.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithRegisterer registers dispatcher and session metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock drives the refresh timer from c.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New validates cfg and assembles a client. Nothing is sent until the
// first call or login.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.transport == nil {
		topts := []apiclient.TransportOption{apiclient.WithTimeout(cfg.Timeout)}
		if cfg.UserAgent != "" {
			topts = append(topts, apiclient.WithUserAgent(cfg.UserAgent))
		}
		if cfg.AuthType == session.AuthCookie {
			topts = append(topts, apiclient.WithCookieJar(nil))
		}
		o.transport = apiclient.NewHTTPTransport(cfg.BaseURL, topts...)
	}

	var (
		apiMetrics     *apiclient.Metrics
		sessionMetrics *session.Metrics
	)
	if o.registerer != nil {
		apiMetrics = apiclient.NewMetrics(o.registerer)
		sessionMetrics = session.NewMetrics(o.registerer)
	}

	dispatcher := apiclient.NewDispatcher(o.transport,
		apiclient.WithSchemaPath(cfg.SchemaPath),
		apiclient.WithCallableMethod(cfg.CallableMethod),
		apiclient.WithErrorObserver(cfg.OnError),
		apiclient.WithMetrics(apiMetrics),
	)

	strategy, err := session.NewStrategy(cfg.AuthType, dispatcher)
	if err != nil {
		return nil, err
	}
	dispatcher.SetHeaderProvider(strategy)

	mopts := []session.ManagerOption{
		session.WithRefreshMargin(cfg.RefreshMargin),
		session.WithRetryPolicy(cfg.Retry),
		session.WithMetrics(sessionMetrics),
	}
	if o.clock != nil {
		mopts = append(mopts, session.WithClock(o.clock))
	}

	logger.Debug("Client created",
		logger.KeyServer, cfg.BaseURL,
		logger.AuthType(string(cfg.AuthType)))

	return &Client{
		cfg:        cfg,
		dispatcher: dispatcher,
		strategy:   strategy,
		session:    session.NewManager(strategy, mopts...),
	}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// API resolves the operation table, fetching the schema on first use.
func (c *Client) API(ctx context.Context) (*apiclient.OperationTable, error) {
	return c.dispatcher.Resolve(ctx)
}

// Call invokes operation id with args and returns its raw payload.
func (c *Client) Call(ctx context.Context, id string, args any, opts ...apiclient.CallOption) (json.RawMessage, error) {
	return c.dispatcher.Call(ctx, id, args, opts...)
}

// Dispatcher returns the underlying dispatcher.
func (c *Client) Dispatcher() *apiclient.Dispatcher { return c.dispatcher }

// Session returns the session manager.
func (c *Client) Session() *session.Manager { return c.session }

// Close stops the refresh timer and aborts requests registered under a
// cancel key. The session itself is not logged out.
func (c *Client) Close() error {
	c.dispatcher.CancelAll()
	return c.session.Close()
}
