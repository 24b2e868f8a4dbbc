// Package credentials provides credential storage and context management for yeepctl.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// DefaultConfigDir is the default directory for yeepctl configuration.
	DefaultConfigDir = "yeepctl"
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "config.json"
	// FilePermissions for config files (read/write for owner only).
	FilePermissions = 0600
	// DirPermissions for config directories.
	DirPermissions = 0700

	// expirySlack treats tokens this close to expiry as already expired.
	expirySlack = 60 * time.Second
)

var (
	// ErrNoCurrentContext indicates no context is currently set.
	ErrNoCurrentContext = errors.New("no current context set")
	// ErrContextNotFound indicates the requested context doesn't exist.
	ErrContextNotFound = errors.New("context not found")
	// ErrNotLoggedIn indicates no valid credentials exist.
	ErrNotLoggedIn = errors.New("not logged in - run 'yeepctl login' first")
)

// Cookie is a persisted session cookie.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Context represents a connection context to a yeep service.
type Context struct {
	ServerURL string    `json:"server_url"`
	Username  string    `json:"username,omitempty"`
	AuthType  string    `json:"auth_type,omitempty"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Cookies   []Cookie  `json:"cookies,omitempty"`
}

// IsExpired returns true if the bearer token has expired or expires within
// the next minute. A token without expiry is treated as expired.
func (c *Context) IsExpired() bool {
	return c.isExpiredAt(time.Now())
}

func (c *Context) isExpiredAt(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(expirySlack).After(c.ExpiresAt)
}

// HasToken returns true if a bearer token is stored.
func (c *Context) HasToken() bool {
	return c.Token != ""
}

// HasSession returns true if the context holds a bearer token or session
// cookies.
func (c *Context) HasSession() bool {
	return c.HasToken() || len(c.Cookies) > 0
}

// HTTPCookies converts the persisted cookies for a cookie jar.
func (c *Context) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(c.Cookies))
	for _, ck := range c.Cookies {
		out = append(out, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return out
}

// Preferences represents user preferences.
type Preferences struct {
	DefaultOutput string `json:"default_output,omitempty"` // table, json, yaml
	Color         string `json:"color,omitempty"`          // auto, always, never
}

// Config represents the complete yeepctl credential file.
type Config struct {
	CurrentContext string              `json:"current_context"`
	Contexts       map[string]*Context `json:"contexts"`
	Preferences    Preferences         `json:"preferences,omitempty"`
}

// Store manages credential storage and retrieval.
type Store struct {
	configPath string
	config     *Config
}

// NewStore creates a credential store at the default location.
func NewStore() (*Store, error) {
	configPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return NewStoreAt(configPath)
}

// NewStoreAt creates a credential store backed by configPath.
func NewStoreAt(configPath string) (*Store, error) {
	store := &Store{
		configPath: configPath,
	}

	// Load existing config or create new
	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("cannot read credentials from %s: %w", configPath, err)
		}
		store.config = &Config{
			Contexts: make(map[string]*Context),
		}
	}

	return store, nil
}

// DefaultPath returns the path of the credential file.
func DefaultPath() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise ~/.config
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}

	return filepath.Join(configHome, DefaultConfigDir, ConfigFileName), nil
}

// load reads the config from disk.
func (s *Store) load() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		return err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return err
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	s.config = cfg
	return nil
}

// Reload re-reads the file, picking up changes made by other processes.
func (s *Store) Reload() error {
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// save writes the config to disk.
func (s *Store) save() error {
	// Ensure directory exists
	dir := filepath.Dir(s.configPath)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(s.config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configPath, data, FilePermissions)
}

// GetCurrentContext returns the current context.
func (s *Store) GetCurrentContext() (*Context, error) {
	if s.config.CurrentContext == "" {
		return nil, ErrNoCurrentContext
	}

	ctx, ok := s.config.Contexts[s.config.CurrentContext]
	if !ok {
		return nil, ErrContextNotFound
	}

	return ctx, nil
}

// GetCurrentContextName returns the name of the current context.
func (s *Store) GetCurrentContextName() string {
	return s.config.CurrentContext
}

// GetContext returns a specific context by name.
func (s *Store) GetContext(name string) (*Context, error) {
	ctx, ok := s.config.Contexts[name]
	if !ok {
		return nil, ErrContextNotFound
	}
	return ctx, nil
}

// ListContexts returns all context names in lexical order.
func (s *Store) ListContexts() []string {
	names := make([]string, 0, len(s.config.Contexts))
	for name := range s.config.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetContext creates or updates a context.
func (s *Store) SetContext(name string, ctx *Context) error {
	s.config.Contexts[name] = ctx
	return s.save()
}

// UseContext switches to a different context.
func (s *Store) UseContext(name string) error {
	if _, ok := s.config.Contexts[name]; !ok {
		return ErrContextNotFound
	}
	s.config.CurrentContext = name
	return s.save()
}

// RenameContext renames a context.
func (s *Store) RenameContext(oldName, newName string) error {
	ctx, ok := s.config.Contexts[oldName]
	if !ok {
		return ErrContextNotFound
	}
	if _, exists := s.config.Contexts[newName]; exists {
		return fmt.Errorf("context %q already exists", newName)
	}

	delete(s.config.Contexts, oldName)
	s.config.Contexts[newName] = ctx

	if s.config.CurrentContext == oldName {
		s.config.CurrentContext = newName
	}

	return s.save()
}

// DeleteContext removes a context.
func (s *Store) DeleteContext(name string) error {
	if _, ok := s.config.Contexts[name]; !ok {
		return ErrContextNotFound
	}

	delete(s.config.Contexts, name)

	if s.config.CurrentContext == name {
		s.config.CurrentContext = ""
	}

	return s.save()
}

// UpdateToken stores a new bearer token for the current context.
func (s *Store) UpdateToken(token string, expiresAt time.Time) error {
	ctx, err := s.GetCurrentContext()
	if err != nil {
		return err
	}

	ctx.Token = token
	ctx.ExpiresAt = expiresAt

	return s.save()
}

// UpdateCookies stores the session cookies for the current context.
func (s *Store) UpdateCookies(cookies []*http.Cookie) error {
	ctx, err := s.GetCurrentContext()
	if err != nil {
		return err
	}

	ctx.Cookies = ctx.Cookies[:0]
	for _, c := range cookies {
		ctx.Cookies = append(ctx.Cookies, Cookie{Name: c.Name, Value: c.Value})
	}

	return s.save()
}

// ClearCurrentContext clears credentials from the current context (logout).
func (s *Store) ClearCurrentContext() error {
	if s.config.CurrentContext == "" {
		return ErrNoCurrentContext
	}
	return s.ClearContext(s.config.CurrentContext)
}

// ClearContext clears the stored credentials of a context, keeping its
// server and username.
func (s *Store) ClearContext(name string) error {
	ctx, err := s.GetContext(name)
	if err != nil {
		return err
	}

	ctx.Token = ""
	ctx.ExpiresAt = time.Time{}
	ctx.Cookies = nil

	return s.save()
}

// GetPreferences returns the user preferences.
func (s *Store) GetPreferences() Preferences {
	return s.config.Preferences
}

// SetPreferences updates the user preferences.
func (s *Store) SetPreferences(prefs Preferences) error {
	s.config.Preferences = prefs
	return s.save()
}

// ConfigPath returns the path to the config file.
func (s *Store) ConfigPath() string {
	return s.configPath
}

// GenerateContextName derives a context name from a server URL: its host
// and port, or "default" when the URL cannot be parsed.
func GenerateContextName(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return "default"
	}
	return u.Host
}
