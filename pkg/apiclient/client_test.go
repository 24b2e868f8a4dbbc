package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPTransport(t *testing.T) {
	tr := NewHTTPTransport("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", tr.BaseURL())
	assert.Equal(t, DefaultTimeout, tr.httpClient.Timeout)
	assert.Nil(t, tr.httpClient.Jar)

	tr = NewHTTPTransport("http://localhost:8080", WithTimeout(time.Second), WithCookieJar(nil), WithUserAgent("yeepctl/test"))
	assert.Equal(t, time.Second, tr.httpClient.Timeout)
	assert.NotNil(t, tr.httpClient.Jar)
	assert.Equal(t, "yeepctl/test", tr.userAgent)

	custom := &http.Client{}
	tr = NewHTTPTransport("http://localhost:8080", WithHTTPClient(custom))
	assert.Same(t, custom, tr.HTTPClient())
}

func TestWithCookieJarKeepsTransport(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	tr := NewHTTPTransport("http://localhost:8080", WithCookieJar(jar))
	assert.Same(t, jar, tr.httpClient.Jar)
	pool, ok := tr.httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, pool.MaxIdleConnsPerHost)
}

func TestSendWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/widget.info", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "yeepctl/test", r.Header.Get("User-Agent"))
		assert.Equal(t, "abc", r.Header.Get("X-Custom"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"id":"w1"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"name":"gear"}`))
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL, WithUserAgent("yeepctl/test"))
	resp, err := tr.Send(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/api/widget.info",
		Header: http.Header{"X-Custom": []string{"abc"}},
		Body:   map[string]string{"id": "w1"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true,"name":"gear"}`, string(resp.Body))
}

func TestSendWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := NewHTTPTransport(server.URL).Send(context.Background(), &Request{Method: http.MethodGet, Path: "/api/docs"})
	require.NoError(t, err)
	assert.Empty(t, resp.Body)
}

func TestSendNon2xxIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	resp, err := NewHTTPTransport(server.URL).Send(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream down", string(resp.Body))
}

func TestSendUnmarshalableBody(t *testing.T) {
	_, err := NewHTTPTransport("http://127.0.0.1:1").Send(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/api/x",
		Body:   make(chan int),
	})

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "POST /api/x", te.Op)
	assert.Contains(t, te.Error(), "failed to marshal request body")
}

func TestSendConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPTransport(url).Send(context.Background(), &Request{Method: http.MethodGet, Path: "/"})

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
	assert.False(t, te.Canceled())
}

func TestSendCanceled(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := NewHTTPTransport(server.URL).Send(ctx, &Request{Method: http.MethodGet, Path: "/slow"})

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Canceled())
	assert.True(t, IsCanceled(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPTransport(server.URL).Send(ctx, &Request{Method: http.MethodGet, Path: "/slow"})

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Timeout())
	assert.False(t, te.Canceled())
}

func TestSendCookieJar(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/set":
			http.SetCookie(w, &http.Cookie{Name: "yeep", Value: "s1", Path: "/"})
		case "/check":
			c, err := r.Cookie("yeep")
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"cookie": c.Value})
		}
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL, WithCookieJar(nil))
	_, err := tr.Send(context.Background(), &Request{Method: http.MethodPost, Path: "/set", Body: struct{}{}})
	require.NoError(t, err)

	resp, err := tr.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/check"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"cookie":"s1"}`, string(resp.Body))
}

func TestErrorTypes(t *testing.T) {
	t.Run("ServiceError", func(t *testing.T) {
		err := &ServiceError{Code: 401, Message: "bad token", Details: []any{"token"}}
		assert.Equal(t, "401: bad token", err.Error())
		assert.True(t, err.IsAuthError())
		assert.False(t, err.IsNotFound())

		detail, ok := err.FirstDetail()
		assert.True(t, ok)
		assert.Equal(t, "token", detail)

		_, ok = (&ServiceError{Message: "x"}).FirstDetail()
		assert.False(t, ok)
		assert.Equal(t, "x", (&ServiceError{Message: "x"}).Error())
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := &ValidationError{Field: "password", Reason: "required"}
		assert.Equal(t, `invalid "password" property: required`, err.Error())
	})

	t.Run("StateError", func(t *testing.T) {
		err := &StateError{Op: "logout", Reason: "login first", Err: ErrNotAuthenticated}
		assert.Equal(t, "logout: no active session; login first", err.Error())
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("DecodeError", func(t *testing.T) {
		inner := errors.New("token is malformed")
		err := &DecodeError{Err: inner}
		assert.ErrorIs(t, err, inner)
		assert.Contains(t, err.Error(), "failed to decode session token")
	})
}
