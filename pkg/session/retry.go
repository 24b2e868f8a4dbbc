package session

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/yeep/internal/clock"
)

// Retry defaults.
const (
	DefaultRetryFloor       = 300 * time.Millisecond
	DefaultRetryMaxInterval = 10 * time.Minute
	DefaultRetryJitter      = 0.2
)

// RetryPolicy shapes the delays between failed automatic refreshes. Each
// retry waits twice the previous delay, starting from Floor when the
// previous delay was zero, randomized by Jitter and capped at MaxInterval.
// Retries continue until a refresh succeeds or the session ends.
type RetryPolicy struct {
	Floor       time.Duration `mapstructure:"floor" yaml:"floor" json:"floor"`
	MaxInterval time.Duration `mapstructure:"max_interval" yaml:"max_interval" json:"max_interval"`
	// Jitter is the randomization factor in [0, 0.5].
	Jitter float64 `mapstructure:"jitter" yaml:"jitter" json:"jitter"`
}

// DefaultRetryPolicy returns the default policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Floor:       DefaultRetryFloor,
		MaxInterval: DefaultRetryMaxInterval,
		Jitter:      DefaultRetryJitter,
	}
}

// Validate reports an unusable policy.
func (p RetryPolicy) Validate() error {
	if p.Floor < 0 {
		return fmt.Errorf("retry floor must not be negative")
	}
	if p.MaxInterval < 0 {
		return fmt.Errorf("retry max interval must not be negative")
	}
	if p.Jitter < 0 || p.Jitter > 0.5 {
		return fmt.Errorf("retry jitter must be within [0, 0.5], got %v", p.Jitter)
	}
	return nil
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Floor <= 0 {
		p.Floor = DefaultRetryFloor
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultRetryMaxInterval
	}
	return p
}

// newBackOff starts a backoff sequence after a refresh scheduled with
// previous failed. The first delay is twice previous (or twice Floor when
// previous was zero).
func (p RetryPolicy) newBackOff(previous time.Duration, clk clock.Clock) backoff.BackOff {
	base := previous
	if base <= 0 {
		base = p.Floor
	}
	initial := 2 * base
	if initial > p.MaxInterval {
		initial = p.MaxInterval
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: p.Jitter,
		Multiplier:          2,
		MaxInterval:         p.MaxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clk,
	}
	b.Reset()
	return b
}
