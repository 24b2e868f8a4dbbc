// Package apiclient discovers the operations of a yeep service from its
// schema document and dispatches calls to them over HTTP.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// DefaultTimeout bounds a single round trip when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxResponseSize limits response body reads.
const maxResponseSize = 16 << 20

// Request is a single call handed to a Transport.
type Request struct {
	Method string
	Path   string
	Header http.Header
	// Body is JSON-encoded when non-nil.
	Body any
}

// Response is the undecoded reply to a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport executes one request. Cancellation is carried by ctx; network
// failures are returned as *TransportError.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the net/http implementation of Transport.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.httpClient.Timeout = d
		}
	}
}

// WithCookieJar makes the transport send and store cookies in jar, which
// cookie based sessions depend on. A nil jar starts an empty one. Only the
// jar of the transport's client changes; its connection pool is kept.
func WithCookieJar(jar http.CookieJar) TransportOption {
	return func(t *HTTPTransport) {
		if jar == nil {
			jar, _ = cookiejar.New(nil)
		}
		t.httpClient.Jar = jar
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) TransportOption {
	return func(t *HTTPTransport) {
		t.userAgent = ua
	}
}

// NewHTTPTransport creates a transport rooted at baseURL with keep-alive
// connections.
func NewHTTPTransport(baseURL string, opts ...TransportOption) *HTTPTransport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BaseURL returns the service root the transport talks to.
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

// HTTPClient returns the client requests go through.
func (t *HTTPTransport) HTTPClient() *http.Client { return t.httpClient }

// Send performs an HTTP request and returns the raw response. Non-2xx
// statuses are not errors at this layer.
func (t *HTTPTransport) Send(ctx context.Context, r *Request) (*Response, error) {
	op := r.Method + " " + r.Path

	var bodyReader io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, t.baseURL+r.Path, bodyReader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceledError(op, ctx)
		}
		return nil, &TransportError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceledError(op, ctx)
		}
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}
