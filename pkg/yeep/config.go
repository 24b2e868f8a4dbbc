package yeep

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/yeep/pkg/apiclient"
	"github.com/marmos91/yeep/pkg/session"
)

// Config describes how a Client reaches the service and keeps its session.
type Config struct {
	// BaseURL is the service root, e.g. "https://api.example.com".
	BaseURL string `mapstructure:"base_url" yaml:"base_url" json:"base_url" validate:"required,url"`

	// AuthType selects the session strategy: "bearer" (default) or "cookie".
	AuthType session.AuthType `mapstructure:"auth_type" yaml:"auth_type" json:"auth_type" validate:"omitempty,oneof=bearer cookie"`

	// Timeout bounds a single request. Default: 30s.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout" validate:"gte=0"`

	// SchemaPath is where the schema document is published. Default: /api/docs.
	SchemaPath string `mapstructure:"schema_path" yaml:"schema_path" json:"schema_path" validate:"omitempty,startswith=/"`

	// CallableMethod selects the schema entries exposed as operations.
	// Default: POST.
	CallableMethod string `mapstructure:"callable_method" yaml:"callable_method" json:"callable_method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`

	// UserAgent is sent with every request.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent,omitempty" json:"user_agent,omitempty"`

	// RefreshMargin is how long before expiry a bearer token is refreshed.
	// Default: 10s.
	RefreshMargin time.Duration `mapstructure:"refresh_margin" yaml:"refresh_margin" json:"refresh_margin" validate:"gte=0"`

	// Retry shapes the backoff between failed automatic refreshes. A zero
	// policy takes every default, jitter included; Jitter stays zero only
	// when set alongside another field.
	Retry session.RetryPolicy `mapstructure:"retry" yaml:"retry" json:"retry"`

	// OnError, when set, observes every normalized error returned by a call.
	OnError func(error) `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultConfig returns a configuration for baseURL with every default set.
func DefaultConfig(baseURL string) Config {
	cfg := Config{BaseURL: baseURL}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.AuthType == "" {
		c.AuthType = session.AuthBearer
	}
	if c.Timeout == 0 {
		c.Timeout = apiclient.DefaultTimeout
	}
	if c.SchemaPath == "" {
		c.SchemaPath = apiclient.DefaultSchemaPath
	}
	if c.CallableMethod == "" {
		c.CallableMethod = "POST"
	}
	c.CallableMethod = strings.ToUpper(c.CallableMethod)
	if c.RefreshMargin == 0 {
		c.RefreshMargin = session.DefaultRefreshMargin
	}
	if c.Retry == (session.RetryPolicy{}) {
		c.Retry = session.DefaultRetryPolicy()
	}
	if c.Retry.Floor == 0 {
		c.Retry.Floor = session.DefaultRetryFloor
	}
	if c.Retry.MaxInterval == 0 {
		c.Retry.MaxInterval = session.DefaultRetryMaxInterval
	}
}

// Validate checks the configuration. The first failing field is reported
// as *apiclient.ValidationError.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &apiclient.ValidationError{
				Field:  fe.Field(),
				Reason: fmt.Sprintf("failed %q check (got %v)", fe.Tag(), fe.Value()),
			}
		}
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return &apiclient.ValidationError{Field: "Retry", Reason: err.Error()}
	}
	return nil
}
