// Package output renders yeepctl results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Format represents the output format type.
type Format string

const (
	// FormatTable outputs data in a formatted table.
	FormatTable Format = "table"
	// FormatJSON outputs data as JSON.
	FormatJSON Format = "json"
	// FormatYAML outputs data as YAML.
	FormatYAML Format = "yaml"
)

// ParseFormat parses a string into a Format, returning an error if invalid.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

// String returns the string representation of the format.
func (f Format) String() string {
	return string(f)
}

// Printer handles formatted output to a writer.
type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

// NewPrinter creates a new Printer with the given options.
func NewPrinter(out io.Writer, format Format, color bool) *Printer {
	return &Printer{
		out:    out,
		format: format,
		color:  color,
	}
}

// DefaultPrinter creates a table Printer on stdout. Color is disabled when
// NO_COLOR is set.
func DefaultPrinter() *Printer {
	_, noColor := os.LookupEnv("NO_COLOR")
	return NewPrinter(os.Stdout, FormatTable, !noColor)
}

// Format returns the printer's output format.
func (p *Printer) Format() Format {
	return p.format
}

// Writer returns the printer's output writer.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// ColorEnabled returns whether color output is enabled.
func (p *Printer) ColorEnabled() bool {
	return p.color
}

// Print outputs data in the configured format.
//
// Operation payloads (json.RawMessage) are decoded first so they render in
// every format; in table format objects become key/value rows and arrays of
// objects become one row per element. Other values must implement
// TableRenderer for table output, or fall back to JSON.
func (p *Printer) Print(data any) error {
	if raw, ok := data.(json.RawMessage); ok {
		return p.printPayload(raw)
	}

	switch p.format {
	case FormatTable:
		if renderer, ok := data.(TableRenderer); ok {
			return PrintTable(p.out, renderer)
		}
		return PrintJSON(p.out, data)
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

func (p *Printer) printPayload(raw json.RawMessage) error {
	switch p.format {
	case FormatJSON:
		return PrintJSON(p.out, raw)
	case FormatYAML:
		return PrintYAML(p.out, raw)
	case FormatTable:
		value, err := decodePayload(raw)
		if err != nil {
			return err
		}
		if pairs, ok := payloadPairs(value); ok {
			return SimpleTable(p.out, pairs)
		}
		if table, ok := payloadRows(value); ok {
			return PrintTable(p.out, table)
		}
		return PrintJSON(p.out, raw)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

// Println prints a message followed by a newline.
func (p *Printer) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

// Printf prints a formatted message.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Success prints a success message.
func (p *Printer) Success(msg string) {
	p.colored("32", msg)
}

// Error prints an error message.
func (p *Printer) Error(msg string) {
	p.colored("31", msg)
}

// Warning prints a warning message.
func (p *Printer) Warning(msg string) {
	p.colored("33", msg)
}

func (p *Printer) colored(code, msg string) {
	if p.color {
		_, _ = fmt.Fprintf(p.out, "\033[%sm%s\033[0m\n", code, msg)
	} else {
		_, _ = fmt.Fprintln(p.out, msg)
	}
}
