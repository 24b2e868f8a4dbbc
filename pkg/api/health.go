package api

import (
	"net/http"
	"time"

	"github.com/marmos91/yeep/pkg/session"
)

// SessionSource exposes the live session. *session.Manager implements it.
type SessionSource interface {
	State() session.State
	NextRefresh() (time.Duration, bool)
	Failures() int
}

// HealthHandler serves the liveness and session endpoints.
type HealthHandler struct {
	service string
	source  SessionSource
}

// NewHealthHandler creates a health handler. source may be nil, in which
// case the session endpoint reports unhealthy.
func NewHealthHandler(service string, source SessionSource) *HealthHandler {
	return &HealthHandler{service: service, source: source}
}

// SessionStatus is the payload of GET /health/session.
type SessionStatus struct {
	State       string     `json:"state"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	NextRefresh string     `json:"next_refresh,omitempty"`
	Failures    int        `json:"failures"`
}

// Liveness handles GET /health. It succeeds while the process serves HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthyResponse(map[string]string{
		"service": h.service,
	}))
}

// Session handles GET /health/session.
//
// Returns 200 while a session is established and its renewals succeed,
// 503 when logged out or while automatic refreshes are failing.
func (h *HealthHandler) Session(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		JSON(w, http.StatusServiceUnavailable, UnhealthyResponse("session not initialized", nil))
		return
	}

	state := h.source.State()
	status := SessionStatus{
		State:    state.Kind.String(),
		Failures: h.source.Failures(),
	}
	if !state.ExpiresAt.IsZero() {
		expiresAt := state.ExpiresAt.UTC()
		status.ExpiresAt = &expiresAt
	}
	if d, ok := h.source.NextRefresh(); ok {
		status.NextRefresh = d.Round(time.Second).String()
	}

	switch {
	case !state.Authenticated():
		JSON(w, http.StatusServiceUnavailable, UnhealthyResponse("not authenticated", status))
	case status.Failures > 0:
		JSON(w, http.StatusServiceUnavailable, UnhealthyResponse("session refresh failing", status))
	default:
		JSON(w, http.StatusOK, HealthyResponse(status))
	}
}
