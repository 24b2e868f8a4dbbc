// Package health checks that a yeep service is reachable and publishes a
// usable operation schema.
package health

import (
	"context"
	"strconv"
	"time"

	"github.com/marmos91/yeep/pkg/apiclient"
)

// Status values reported by Probe.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Resolver resolves the operation table of a service. *apiclient.Dispatcher
// implements it.
type Resolver interface {
	Resolve(ctx context.Context) (*apiclient.OperationTable, error)
}

// Report is the outcome of a probe.
type Report struct {
	Server        string  `json:"server" yaml:"server"`
	Status        string  `json:"status" yaml:"status"`
	SchemaVersion string  `json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
	Operations    int     `json:"operations" yaml:"operations"`
	LatencyMs     float64 `json:"latency_ms" yaml:"latency_ms"`
	Error         string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Healthy reports whether the schema was fetched.
func (r *Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Pairs renders the report as key/value rows.
func (r *Report) Pairs() [][2]string {
	pairs := [][2]string{
		{"Server", r.Server},
		{"Status", r.Status},
	}
	if r.Healthy() {
		pairs = append(pairs,
			[2]string{"Schema version", r.SchemaVersion},
			[2]string{"Operations", strconv.Itoa(r.Operations)},
		)
	} else {
		pairs = append(pairs, [2]string{"Error", r.Error})
	}
	pairs = append(pairs, [2]string{"Latency", strconv.FormatFloat(r.LatencyMs, 'f', 1, 64) + "ms"})
	return pairs
}

// Probe resolves the schema through resolver and times the round trip.
// Failures are reported in the returned Report, never as an error.
func Probe(ctx context.Context, server string, resolver Resolver) *Report {
	start := time.Now()
	table, err := resolver.Resolve(ctx)
	report := &Report{
		Server:    server,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
	}

	if err != nil {
		report.Status = StatusUnhealthy
		report.Error = err.Error()
		return report
	}

	report.Status = StatusHealthy
	report.SchemaVersion = table.Version()
	report.Operations = table.Len()
	return report
}
