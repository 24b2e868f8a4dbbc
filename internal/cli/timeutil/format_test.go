package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{900 * time.Millisecond, "0s"},
		{50 * time.Second, "50s"},
		{4*time.Minute + 50*time.Second, "4m 50s"},
		{2*time.Hour + 5*time.Second, "2h 0m 5s"},
		{72*time.Hour + 30*time.Minute + 15*time.Second, "3d 0h 30m 15s"},
		{-3 * time.Second, "3s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), tt.in.String())
	}
}

func TestFormatExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "never", FormatExpiry(time.Time{}, now))
	assert.Equal(t, "in 15m 0s", FormatExpiry(now.Add(15*time.Minute), now))
	assert.Equal(t, "expired 3s ago", FormatExpiry(now.Add(-3*time.Second), now))
	assert.Equal(t, "expired 0s ago", FormatExpiry(now, now))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", FormatTime(time.Time{}))

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, ts.Local().Format(LocalTimeFormat), FormatTime(ts))
}
