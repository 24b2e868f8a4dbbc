package credentials

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	store, err := NewStore()
	require.NoError(t, err)
	return store
}

func TestContextIsExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		expiresAt time.Time
		expected  bool
	}{
		{
			name:      "expired in past",
			expiresAt: now.Add(-1 * time.Hour),
			expected:  true,
		},
		{
			name:      "expires soon (within 60s)",
			expiresAt: now.Add(30 * time.Second),
			expected:  true,
		},
		{
			name:      "not expired",
			expiresAt: now.Add(2 * time.Hour),
			expected:  false,
		},
		{
			name:      "zero time is expired",
			expiresAt: time.Time{},
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &Context{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expected, ctx.isExpiredAt(now))
		})
	}

	assert.False(t, (&Context{ExpiresAt: time.Now().Add(time.Hour)}).IsExpired())
}

func TestContextSession(t *testing.T) {
	ctx := &Context{}
	assert.False(t, ctx.HasToken())
	assert.False(t, ctx.HasSession())

	ctx.Token = "token"
	assert.True(t, ctx.HasToken())
	assert.True(t, ctx.HasSession())

	ctx = &Context{Cookies: []Cookie{{Name: "yeep_session", Value: "abc"}}}
	assert.False(t, ctx.HasToken())
	assert.True(t, ctx.HasSession())

	cookies := ctx.HTTPCookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "yeep_session", cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
}

func TestStoreOperations(t *testing.T) {
	store := newTestStore(t)

	// Verify config file location
	expectedPath := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), DefaultConfigDir, ConfigFileName)
	assert.Equal(t, expectedPath, store.ConfigPath())

	// Test empty state
	_, err := store.GetCurrentContext()
	assert.ErrorIs(t, err, ErrNoCurrentContext)
	assert.Empty(t, store.ListContexts())

	ctx1 := &Context{
		ServerURL: "http://localhost:8080",
		Username:  "alice",
		AuthType:  "bearer",
		Token:     "token1",
		ExpiresAt: time.Now().Add(1 * time.Hour),
	}
	require.NoError(t, store.SetContext("default", ctx1))
	require.NoError(t, store.UseContext("default"))

	current, err := store.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", current.ServerURL)
	assert.Equal(t, "alice", current.Username)

	ctx2 := &Context{
		ServerURL: "http://production:8080",
		Username:  "bob",
		AuthType:  "cookie",
	}
	require.NoError(t, store.SetContext("production", ctx2))

	assert.Equal(t, []string{"default", "production"}, store.ListContexts())

	require.NoError(t, store.UseContext("production"))
	assert.Equal(t, "production", store.GetCurrentContextName())

	// Rename onto an existing name is refused
	assert.Error(t, store.RenameContext("production", "default"))

	require.NoError(t, store.RenameContext("production", "prod"))
	assert.Equal(t, "prod", store.GetCurrentContextName())

	require.NoError(t, store.DeleteContext("prod"))
	assert.Empty(t, store.GetCurrentContextName())

	_, err = store.GetContext("nonexistent")
	assert.ErrorIs(t, err, ErrContextNotFound)
	assert.ErrorIs(t, store.UseContext("nonexistent"), ErrContextNotFound)
	assert.ErrorIs(t, store.DeleteContext("nonexistent"), ErrContextNotFound)
}

func TestStorePersistence(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetContext("default", &Context{ServerURL: "http://localhost:8080", Token: "tok"}))
	require.NoError(t, store.UseContext("default"))

	info, err := os.Stat(store.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePermissions), info.Mode().Perm())

	reopened, err := NewStoreAt(store.ConfigPath())
	require.NoError(t, err)
	current, err := reopened.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "tok", current.Token)

	// Changes by another process are picked up by Reload
	require.NoError(t, reopened.UpdateToken("rotated", time.Now().Add(time.Hour)))
	require.NoError(t, store.Reload())
	current, err = store.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "rotated", current.Token)
}

func TestNewStoreAtCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), FilePermissions))

	_, err := NewStoreAt(path)
	assert.Error(t, err)
}

func TestStoreUpdateToken(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetCurrentContext()
	require.ErrorIs(t, err, ErrNoCurrentContext)
	assert.ErrorIs(t, store.UpdateToken("x", time.Now()), ErrNoCurrentContext)

	require.NoError(t, store.SetContext("default", &Context{ServerURL: "http://localhost:8080", Token: "old-token"}))
	require.NoError(t, store.UseContext("default"))

	newExpiry := time.Now().Add(2 * time.Hour)
	require.NoError(t, store.UpdateToken("new-token", newExpiry))

	current, err := store.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "new-token", current.Token)
	assert.WithinDuration(t, newExpiry, current.ExpiresAt, time.Second)
}

func TestStoreUpdateCookies(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SetContext("default", &Context{ServerURL: "http://localhost:8080", AuthType: "cookie"}))
	require.NoError(t, store.UseContext("default"))

	require.NoError(t, store.UpdateCookies([]*http.Cookie{{Name: "yeep_session", Value: "s1"}}))
	require.NoError(t, store.UpdateCookies([]*http.Cookie{{Name: "yeep_session", Value: "s2"}}))

	current, err := store.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, []Cookie{{Name: "yeep_session", Value: "s2"}}, current.Cookies)
}

func TestStoreClearCurrentContext(t *testing.T) {
	store := newTestStore(t)

	ctx := &Context{
		ServerURL: "http://localhost:8080",
		Username:  "alice",
		Token:     "token",
		ExpiresAt: time.Now().Add(1 * time.Hour),
		Cookies:   []Cookie{{Name: "yeep_session", Value: "s1"}},
	}
	require.NoError(t, store.SetContext("default", ctx))
	require.NoError(t, store.UseContext("default"))

	require.NoError(t, store.ClearCurrentContext())

	// Credentials are gone but server and user remain
	current, err := store.GetCurrentContext()
	require.NoError(t, err)
	assert.Empty(t, current.Token)
	assert.Empty(t, current.Cookies)
	assert.True(t, current.ExpiresAt.IsZero())
	assert.Equal(t, "http://localhost:8080", current.ServerURL)
	assert.Equal(t, "alice", current.Username)
}

func TestStoreClearContext(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetContext("staging", &Context{ServerURL: "http://staging:8080", Token: "a"}))
	require.NoError(t, store.SetContext("prod", &Context{ServerURL: "http://prod:8080", Token: "b"}))
	require.NoError(t, store.UseContext("prod"))

	require.NoError(t, store.ClearContext("staging"))

	staging, err := store.GetContext("staging")
	require.NoError(t, err)
	assert.False(t, staging.HasSession())

	prod, err := store.GetContext("prod")
	require.NoError(t, err)
	assert.Equal(t, "b", prod.Token)

	assert.ErrorIs(t, store.ClearContext("missing"), ErrContextNotFound)
}

func TestStoreClearCurrentContextUnset(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.ClearCurrentContext(), ErrNoCurrentContext)
}

func TestStorePreferences(t *testing.T) {
	store := newTestStore(t)

	prefs := store.GetPreferences()
	assert.Empty(t, prefs.DefaultOutput)
	assert.Empty(t, prefs.Color)

	require.NoError(t, store.SetPreferences(Preferences{DefaultOutput: "json", Color: "never"}))

	prefs = store.GetPreferences()
	assert.Equal(t, "json", prefs.DefaultOutput)
	assert.Equal(t, "never", prefs.Color)
}

func TestGenerateContextName(t *testing.T) {
	assert.Equal(t, "api.example.com", GenerateContextName("https://api.example.com"))
	assert.Equal(t, "localhost:8080", GenerateContextName("http://localhost:8080/"))
	assert.Equal(t, "default", GenerateContextName("not a url"))
}
