// Package yeeptest runs an in-process yeep service for tests: it publishes
// an operation schema at /api/docs, issues real HS256 session tokens and
// cookies, and lets a test count, fail or hold individual operations.
package yeeptest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// Defaults for a new Server.
const (
	DefaultUser     = "alice"
	DefaultPassword = "secret"
	DefaultVersion  = "1.0.0"
	DefaultTokenTTL = 15 * time.Minute

	// SessionCookie is the name of the cookie set by session.setCookie.
	SessionCookie = "yeep_session"

	// DocsOperation is the name under which schema fetches are counted.
	DocsOperation = "docs"
)

// Option configures a Server.
type Option func(*Server)

// WithUser adds an account that may log in.
func WithUser(user, password string) Option {
	return func(s *Server) {
		s.users[user] = password
	}
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.tokens.ttl = ttl
	}
}

// WithNow replaces the clock used to issue and validate tokens.
func WithNow(now func() time.Time) Option {
	return func(s *Server) {
		s.tokens.now = now
	}
}

// WithVersion sets the schema version published at /api/docs.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithOperation publishes an extra operation answered by h. The handler
// receives the decoded request body and returns the payload merged into a
// successful envelope, or an error written as a failed envelope.
func WithOperation(id string, authenticated bool, h Handler) Option {
	return func(s *Server) {
		s.extra = append(s.extra, route{id: id, auth: authenticated, handler: h})
	}
}

// Handler answers an extra operation.
type Handler func(body map[string]any) (map[string]any, error)

type route struct {
	id      string
	auth    bool
	handler Handler
}

type failure struct {
	status  int
	code    int
	message string
	plain   bool
	times   int
}

// Server is a fake yeep service listening on a loopback address.
type Server struct {
	*httptest.Server

	tokens  *tokenService
	version string
	extra   []route

	mu       sync.Mutex
	users    map[string]string
	active   map[string]string // token -> user
	sessions map[string]string // cookie -> user
	hits     map[string]int
	failures map[string]*failure
	holds    map[string]chan struct{}
	headers  map[string]http.Header
}

// New starts a server. Close it when done.
func New(opts ...Option) *Server {
	s := &Server{
		tokens: &tokenService{
			secret: []byte("yeeptest-secret-key-that-is-at-least-32-characters"),
			issuer: "yeeptest",
			ttl:    DefaultTokenTTL,
			now:    time.Now,
		},
		version:  DefaultVersion,
		users:    map[string]string{DefaultUser: DefaultPassword},
		active:   make(map[string]string),
		sessions: make(map[string]string),
		hits:     make(map[string]int),
		failures: make(map[string]*failure),
		holds:    make(map[string]chan struct{}),
		headers:  make(map[string]http.Header),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/docs", s.handleDocs)
	r.Route("/api", func(r chi.Router) {
		r.Post("/session.issueToken", s.operation("session.issueToken", false, s.issueToken))
		r.Post("/session.destroyToken", s.operation("session.destroyToken", false, s.destroyToken))
		r.Post("/session.refreshToken", s.operation("session.refreshToken", false, s.refreshToken))
		r.Post("/session.setCookie", s.operation("session.setCookie", false, s.setCookie))
		r.Post("/session.destroyCookie", s.operation("session.destroyCookie", true, s.destroyCookie))
		r.Post("/session.refreshCookie", s.operation("session.refreshCookie", true, s.refreshCookie))
		r.Post("/widget.info", s.operation("widget.info", true, s.widgetInfo))
		r.Post("/widget.list", s.operation("widget.list", true, s.widgetList))

		for _, rt := range s.extra {
			r.Post("/"+rt.id, s.operation(rt.id, rt.auth, s.extraHandler(rt.handler)))
		}
	})

	return r
}

// Hits returns how many requests reached operation id, failed or not.
// Schema fetches are counted under DocsOperation.
func (s *Server) Hits(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[id]
}

// LastHeader returns the headers of the latest request to operation id.
func (s *Server) LastHeader(id string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[id].Clone()
}

// Fail makes the next times calls to id answer with a failed envelope
// carrying code and message, sent with HTTP status code.
func (s *Server) Fail(id string, code int, message string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = &failure{status: code, code: code, message: message, times: times}
}

// Break makes the next times calls to id answer with a plain-text body and
// HTTP status, as a proxy in front of the service would.
func (s *Server) Break(id string, status int, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = &failure{status: status, message: http.StatusText(status), plain: true, times: times}
}

// Hold blocks calls to id until the returned release function is called
// or the client gives up on the request.
func (s *Server) Hold(id string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[id] == ch {
				delete(s.holds, id)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Revoke invalidates every issued token and cookie session, as a server
// restart would.
func (s *Server) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[string]string)
	s.sessions = make(map[string]string)
}

// IssueToken signs a token for user without going through login. The
// token is accepted by the server until it expires or is revoked.
func (s *Server) IssueToken(user string) (string, time.Time, error) {
	token, exp, err := s.tokens.issue(user)
	if err != nil {
		return "", time.Time{}, err
	}
	s.mu.Lock()
	s.active[token] = user
	s.mu.Unlock()
	return token, exp, nil
}

// ActiveTokens returns how many issued tokens are still live.
func (s *Server) ActiveTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
