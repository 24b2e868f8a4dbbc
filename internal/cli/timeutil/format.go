// Package timeutil provides time formatting utilities for CLI output.
package timeutil

import (
	"fmt"
	"time"
)

// LocalTimeFormat is the format used for displaying local times in CLI output.
// Uses Go's reference time: Mon Jan 2 15:04:05 2006.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// FormatDuration renders d compactly, e.g. "3d 0h 30m 15s", "4m 50s" or
// "0s". Sub-second precision is dropped.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FormatExpiry describes when a token expires relative to now:
// "in 4m 50s", "expired 3s ago", or "never" for a zero time.
func FormatExpiry(expiresAt, now time.Time) string {
	if expiresAt.IsZero() {
		return "never"
	}
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return "expired " + FormatDuration(remaining) + " ago"
	}
	return "in " + FormatDuration(remaining)
}

// FormatTime returns t as a local time string, or "-" for a zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(LocalTimeFormat)
}
