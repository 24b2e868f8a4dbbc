package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/yeep/pkg/session"
)

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "yeep_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	source := &fakeSource{state: session.State{Kind: session.StateCookie}}
	srv := httptest.NewServer(NewRouter(NewHealthHandler("yeepctl", source), reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "yeep_test_total 1")

	// Redirects to /health
	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/health", resp.Request.URL.Path)
}

func TestRouterWithoutMetrics(t *testing.T) {
	srv := httptest.NewServer(NewRouter(NewHealthHandler("yeepctl", nil), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestServerLifecycle(t *testing.T) {
	s := NewServer(APIConfig{Host: "127.0.0.1", Port: freePort(t)}, nil, nil)
	require.NoError(t, s.Listen())
	assert.True(t, strings.HasPrefix(s.Addr(), "127.0.0.1:"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	// Stop after shutdown is a no-op
	assert.NoError(t, s.Stop(context.Background()))
}

func TestAPIConfigDefaults(t *testing.T) {
	var cfg APIConfig
	cfg.applyDefaults()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
}
