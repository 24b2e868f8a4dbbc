// Package cmdutil provides shared utilities for yeepctl commands.
package cmdutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marmos91/yeep/internal/cli/output"
	"github.com/marmos91/yeep/internal/cli/prompt"
	"github.com/marmos91/yeep/internal/logger"
	"github.com/marmos91/yeep/pkg/apiclient"
	"github.com/marmos91/yeep/pkg/config"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// Version is reported in the User-Agent header. Set by the root command.
var Version = "dev"

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL  string
	ConfigFile string
	Context    string
	Output     string
	NoColor    bool
	Verbose    bool
}

// LoadConfig loads the yeepctl configuration and initializes the logger
// from it. --verbose forces DEBUG logging.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(Flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if Flags.Verbose {
		cfg.Logging.Level = "DEBUG"
	}
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// UserAgent returns the User-Agent sent by yeepctl.
func UserAgent() string {
	return "yeepctl/" + Version
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// IsColorDisabled returns whether color output is disabled.
func IsColorDisabled() bool {
	return Flags.NoColor
}

// NewPrinter returns a printer on w honoring --output and --no-color.
func NewPrinter(w io.Writer) (*output.Printer, error) {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(w, format, !IsColorDisabled()), nil
}

// PrintOutput prints data in the specified format (JSON, YAML, or table).
// For table format, it displays emptyMsg if data is empty, otherwise uses the tableRenderer.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintPairs prints data as JSON/YAML, or as key/value rows in table format.
func PrintPairs(w io.Writer, data any, pairs [][2]string) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		return output.SimpleTable(w, pairs)
	}
}

// PrintSuccess prints a success message if the output format is table.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	printer := output.NewPrinter(os.Stdout, format, !IsColorDisabled())
	printer.Success(msg)
}

// RunDeleteWithConfirmation prompts for confirmation (unless force is true) and runs deleteFn.
func RunDeleteWithConfirmation(resourceType, name string, force bool, deleteFn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete %s '%s'?", resourceType, name), force)
	if err != nil {
		return HandleAbort(err)
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	if err := deleteFn(); err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("%s '%s' deleted successfully", resourceType, name))
	return nil
}

// HandleAbort checks if error is an abort (Ctrl+C) and prints a message.
// Returns nil for abort (user cancelled), otherwise returns the original error.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}

// EmptyOr returns the value if not empty, otherwise returns the fallback.
// Useful for table display where empty fields should show "-".
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// BoolToYesNo converts a boolean to "yes" or "no" string.
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ParseCallArgs builds the argument object of an operation call.
//
// The base object comes from data (inline JSON) or file ("-" reads stdin);
// at most one of them may be set. Each key=value pair is then merged on
// top. Values that parse as JSON keep their type (count=3, tags=["a"]);
// anything else is a string. No input at all yields nil, which the
// dispatcher sends as an empty object.
func ParseCallArgs(data, file string, pairs []string, stdin io.Reader) (any, error) {
	if data != "" && file != "" {
		return nil, errors.New("--data and --file are mutually exclusive")
	}

	var raw []byte
	switch {
	case data != "":
		raw = []byte(data)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read arguments from stdin: %w", err)
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read arguments file: %w", err)
		}
		raw = b
	}

	var base any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &base); err != nil {
			return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
		}
	}

	if len(pairs) == 0 {
		return base, nil
	}

	obj, ok := base.(map[string]any)
	if base != nil && !ok {
		return nil, errors.New("key=value arguments need a JSON object as base")
	}
	if obj == nil {
		obj = make(map[string]any, len(pairs))
	}

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid argument %q (expected key=value)", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		obj[key] = decoded
	}
	return obj, nil
}

// DescribeError renders an operation failure for the terminal, adding the
// service's validation detail or a login hint where relevant.
func DescribeError(err error) string {
	var svcErr *apiclient.ServiceError
	if errors.As(err, &svcErr) {
		msg := fmt.Sprintf("service error %d: %s", svcErr.Code, svcErr.Message)
		if detail, ok := svcErr.FirstDetail(); ok {
			msg += fmt.Sprintf(" (%v)", detail)
		}
		if svcErr.IsAuthError() {
			msg += "\nRun 'yeepctl login' to re-authenticate."
		}
		return msg
	}

	var trErr *apiclient.TransportError
	if errors.As(err, &trErr) {
		switch {
		case trErr.Canceled():
			return "request canceled"
		case trErr.Timeout():
			return fmt.Sprintf("request timed out: %s", trErr.Op)
		}
	}

	var valErr *apiclient.ValidationError
	if errors.As(err, &valErr) {
		return fmt.Sprintf("invalid input: %v", valErr)
	}

	return err.Error()
}
