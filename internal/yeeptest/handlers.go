package yeeptest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Error is a service error answered by an operation handler.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("%d: %s", e.Code, e.Message) }

type opFunc func(w http.ResponseWriter, r *http.Request, body map[string]any, user string) (map[string]any, error)

// operation wraps h with hit counting, holds, injected failures, body
// decoding and authentication.
func (s *Server) operation(id string, authenticated bool, h opFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.enter(w, r, id) {
			return
		}

		body := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, &Error{Code: http.StatusBadRequest, Message: "invalid request body"})
			return
		}

		var user string
		if authenticated {
			var ok bool
			if user, ok = s.authenticate(r); !ok {
				writeError(w, &Error{Code: http.StatusUnauthorized, Message: "authentication required"})
				return
			}
		}

		payload, err := h(w, r, body, user)
		if err != nil {
			var svcErr *Error
			if !errors.As(err, &svcErr) {
				svcErr = &Error{Code: http.StatusInternalServerError, Message: err.Error()}
			}
			writeError(w, svcErr)
			return
		}
		writeOK(w, payload)
	}
}

// enter records the request and applies holds and injected failures.
// Returns false when the response has already been written.
func (s *Server) enter(w http.ResponseWriter, r *http.Request, id string) bool {
	s.mu.Lock()
	s.hits[id]++
	s.headers[id] = r.Header.Clone()
	hold := s.holds[id]
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return false
		}
	}

	s.mu.Lock()
	f := s.failures[id]
	if f != nil {
		f.times--
		if f.times <= 0 {
			delete(s.failures, id)
		}
	}
	s.mu.Unlock()

	if f == nil {
		return true
	}
	if f.plain {
		http.Error(w, f.message, f.status)
		return false
	}
	writeJSON(w, f.status, map[string]any{
		"ok":    false,
		"error": &Error{Code: f.code, Message: f.message},
	})
	return false
}

func (s *Server) authenticate(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token := strings.TrimPrefix(h, "Bearer ")
		if _, err := s.tokens.validate(token); err != nil {
			return "", false
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		user, ok := s.active[token]
		return user, ok
	}

	if c, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		user, ok := s.sessions[c.Value]
		return user, ok
	}
	return "", false
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	if !s.enter(w, r, DocsOperation) {
		return
	}

	ids := []string{
		"session.issueToken", "session.destroyToken", "session.refreshToken",
		"session.setCookie", "session.destroyCookie", "session.refreshCookie",
		"widget.info", "widget.list",
	}
	for _, rt := range s.extra {
		ids = append(ids, rt.id)
	}
	sort.Strings(ids)

	paths := map[string]any{
		"/api/docs": map[string]any{
			"get": map[string]any{"operationId": "docs.get"},
		},
	}
	for _, id := range ids {
		paths["/api/"+id] = map[string]any{
			"parameters": []any{},
			"post": map[string]any{
				"operationId": id,
				"responses":   map[string]any{"200": map[string]any{"description": "ok"}},
			},
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"openapi": "3.0.3",
		"info":    map[string]any{"title": "yeep", "version": s.version},
		"paths":   paths,
	})
}

func credentials(body map[string]any) (string, string, error) {
	user, _ := body["user"].(string)
	password, _ := body["password"].(string)
	if user == "" {
		return "", "", &Error{Code: http.StatusBadRequest, Message: "invalid credentials", Details: []any{"user is required"}}
	}
	if password == "" {
		return "", "", &Error{Code: http.StatusBadRequest, Message: "invalid credentials", Details: []any{"password is required"}}
	}
	return user, password, nil
}

func (s *Server) checkPassword(user, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if want, ok := s.users[user]; !ok || want != password {
		return &Error{Code: http.StatusUnauthorized, Message: "invalid user or password"}
	}
	return nil
}

func (s *Server) grant(user string) (map[string]any, error) {
	token, exp, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"token":     token,
		"expiresAt": exp.UTC().Format(time.RFC3339),
		"user":      user,
	}, nil
}

func (s *Server) issueToken(_ http.ResponseWriter, _ *http.Request, body map[string]any, _ string) (map[string]any, error) {
	user, password, err := credentials(body)
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(user, password); err != nil {
		return nil, err
	}
	return s.grant(user)
}

func (s *Server) destroyToken(_ http.ResponseWriter, _ *http.Request, body map[string]any, _ string) (map[string]any, error) {
	token, _ := body["token"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[token]; !ok {
		return nil, &Error{Code: http.StatusNotFound, Message: "unknown token"}
	}
	delete(s.active, token)
	return nil, nil
}

func (s *Server) refreshToken(_ http.ResponseWriter, _ *http.Request, body map[string]any, _ string) (map[string]any, error) {
	token, _ := body["token"].(string)
	claims, err := s.tokens.validate(token)
	if err != nil {
		return nil, &Error{Code: http.StatusUnauthorized, Message: err.Error()}
	}

	s.mu.Lock()
	_, ok := s.active[token]
	delete(s.active, token)
	s.mu.Unlock()
	if !ok {
		return nil, &Error{Code: http.StatusUnauthorized, Message: "token revoked"}
	}
	return s.grant(claims.User)
}

func (s *Server) setCookie(w http.ResponseWriter, _ *http.Request, body map[string]any, _ string) (map[string]any, error) {
	user, password, err := credentials(body)
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(user, password); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = user
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: id, Path: "/", HttpOnly: true})
	return map[string]any{"user": user}, nil
}

func (s *Server) destroyCookie(w http.ResponseWriter, r *http.Request, _ map[string]any, _ string) (map[string]any, error) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	return nil, nil
}

func (s *Server) refreshCookie(w http.ResponseWriter, r *http.Request, _ map[string]any, user string) (map[string]any, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, &Error{Code: http.StatusUnauthorized, Message: "no session cookie"}
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: c.Value, Path: "/", HttpOnly: true})
	return map[string]any{"user": user}, nil
}

func (s *Server) widgetInfo(_ http.ResponseWriter, _ *http.Request, body map[string]any, user string) (map[string]any, error) {
	id, _ := body["id"].(string)
	switch id {
	case "":
		return nil, &Error{Code: http.StatusBadRequest, Message: "missing id", Details: []any{"id is required"}}
	case "bad":
		return nil, &Error{Code: http.StatusBadRequest, Message: "bad"}
	case "missing":
		return nil, &Error{Code: http.StatusNotFound, Message: "widget not found"}
	}
	return map[string]any{"id": id, "name": "widget " + id, "owner": user}, nil
}

func (s *Server) widgetList(_ http.ResponseWriter, _ *http.Request, _ map[string]any, user string) (map[string]any, error) {
	return map[string]any{
		"widgets": []map[string]any{
			{"id": "w1", "name": "widget w1", "owner": user},
			{"id": "w2", "name": "widget w2", "owner": user},
		},
	}, nil
}

func (s *Server) extraHandler(h Handler) opFunc {
	return func(_ http.ResponseWriter, _ *http.Request, body map[string]any, _ string) (map[string]any, error) {
		return h(body)
	}
}

func writeOK(w http.ResponseWriter, payload map[string]any) {
	out := map[string]any{"ok": true}
	for k, v := range payload {
		out[k] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func writeError(w http.ResponseWriter, e *Error) {
	status := e.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": e})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
