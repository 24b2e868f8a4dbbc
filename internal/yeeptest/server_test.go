package yeeptest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/yeep/internal/clock"
)

func post(t *testing.T, client *http.Client, url string, body any, header http.Header) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestDocs(t *testing.T) {
	s := New(WithVersion("2.1.0"), WithOperation("ping", false, func(map[string]any) (map[string]any, error) {
		return map[string]any{"pong": true}, nil
	}))
	defer s.Close()

	resp, err := http.Get(s.URL + "/api/docs")
	require.NoError(t, err)
	defer resp.Body.Close()

	var doc struct {
		Info  struct{ Version string }
		Paths map[string]map[string]json.RawMessage
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "2.1.0", doc.Info.Version)
	assert.Contains(t, doc.Paths, "/api/session.issueToken")
	assert.Contains(t, doc.Paths, "/api/ping")
	assert.Contains(t, doc.Paths["/api/docs"], "get")
	assert.Equal(t, 1, s.Hits(DocsOperation))
}

func TestBearerFlow(t *testing.T) {
	s := New(WithTokenTTL(time.Hour))
	defer s.Close()
	client := s.Client()

	status, body := post(t, client, s.URL+"/api/session.issueToken", map[string]string{"user": DefaultUser, "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["ok"])

	status, body = post(t, client, s.URL+"/api/session.issueToken", map[string]string{"user": DefaultUser, "password": DefaultPassword}, nil)
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, body["expiresAt"])

	auth := http.Header{"Authorization": []string{"Bearer " + token}}
	status, body = post(t, client, s.URL+"/api/widget.info", map[string]string{"id": "w1"}, auth)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, DefaultUser, body["owner"])
	assert.Equal(t, "Bearer "+token, s.LastHeader("widget.info").Get("Authorization"))

	status, body = post(t, client, s.URL+"/api/session.refreshToken", map[string]string{"token": token}, nil)
	require.Equal(t, http.StatusOK, status)
	refreshed, _ := body["token"].(string)
	assert.NotEqual(t, token, refreshed)

	// The old token was rotated out.
	status, _ = post(t, client, s.URL+"/api/widget.info", map[string]string{"id": "w1"}, auth)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = post(t, client, s.URL+"/api/session.destroyToken", map[string]string{"token": refreshed}, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Zero(t, s.ActiveTokens())
}

func TestExpiredTokenRejected(t *testing.T) {
	clk := clock.NewFake(time.Now())
	s := New(WithNow(clk.Now), WithTokenTTL(time.Minute))
	defer s.Close()

	token, _, err := s.IssueToken(DefaultUser)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	status, body := post(t, s.Client(), s.URL+"/api/session.refreshToken", map[string]string{"token": token}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	errBody, _ := body["error"].(map[string]any)
	assert.Equal(t, "token has expired", errBody["message"])
}

func TestCookieFlow(t *testing.T) {
	s := New()
	defer s.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	status, _ := post(t, client, s.URL+"/api/widget.list", map[string]any{}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := post(t, client, s.URL+"/api/session.setCookie", map[string]string{"user": DefaultUser, "password": DefaultPassword}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, DefaultUser, body["user"])

	status, body = post(t, client, s.URL+"/api/widget.list", map[string]any{}, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["widgets"], 2)

	status, _ = post(t, client, s.URL+"/api/session.destroyCookie", map[string]any{}, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = post(t, client, s.URL+"/api/widget.list", map[string]any{}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestFailAndBreak(t *testing.T) {
	s := New()
	defer s.Close()
	client := s.Client()
	creds := map[string]string{"user": DefaultUser, "password": DefaultPassword}

	s.Fail("session.issueToken", http.StatusServiceUnavailable, "maintenance", 1)
	status, body := post(t, client, s.URL+"/api/session.issueToken", creds, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, false, body["ok"])

	s.Break("session.issueToken", http.StatusBadGateway, 1)
	status, _ = post(t, client, s.URL+"/api/session.issueToken", creds, nil)
	assert.Equal(t, http.StatusBadGateway, status)

	status, _ = post(t, client, s.URL+"/api/session.issueToken", creds, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, s.Hits("session.issueToken"))
}

func TestHold(t *testing.T) {
	s := New()
	defer s.Close()
	release := s.Hold("session.issueToken")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL+"/api/session.issueToken", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	_, err = s.Client().Do(req)
	assert.Error(t, err)

	release()
	release()
	status, _ := post(t, s.Client(), s.URL+"/api/session.issueToken", map[string]string{"user": DefaultUser, "password": DefaultPassword}, nil)
	assert.Equal(t, http.StatusOK, status)
}
