// Package logger is the process-wide structured logger used by the yeep
// client runtime and yeepctl. It wraps log/slog with a colored text
// handler for terminals and a JSON handler for machines.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is a minimum severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

var slogLevels = [...]slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel converts a level name to a Level. WARNING is accepted as WARN.
func ParseLevel(s string) (Level, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARNING" {
		name = "WARN"
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value // "text" or "json"

	mu       sync.RWMutex
	slogger  *slog.Logger
	output   io.Writer = os.Stderr
	useColor bool
	closer   io.Closer
)

func init() {
	// Command output goes to stdout; logs stay on stderr and quiet by default.
	currentLevel.Store(int32(LevelWarn))
	currentFormat.Store("text")
	useColor = isTerminal(os.Stderr.Fd())
	reconfigure()
}

// reconfigure rebuilds the slog handler from the current settings.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: slogLevels[GetLevel()]}
	if format, _ := currentFormat.Load().(string); format == "json" {
		slogger = slog.New(slog.NewJSONHandler(output, opts))
		return
	}
	slogger = slog.New(NewColorTextHandler(output, opts, useColor))
}

// openOutput resolves an output name to a writer. Files are appended to
// and returned as the closer.
func openOutput(name string) (w io.Writer, color bool, c io.Closer, err error) {
	switch strings.ToLower(name) {
	case "stdout":
		return os.Stdout, isTerminal(os.Stdout.Fd()), nil, nil
	case "stderr":
		return os.Stderr, isTerminal(os.Stderr.Fd()), nil, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to open log file %q: %w", name, err)
	}
	return f, false, f, nil
}

// Init applies cfg. Empty fields keep their current value.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, color, c, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}
		mu.Lock()
		if closer != nil {
			_ = closer.Close()
		}
		output, useColor, closer = w, color, c
		mu.Unlock()
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	reconfigure()
	return nil
}

// InitWithWriter sends logs to w. Used by tests.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	mu.Lock()
	output, useColor = w, enableColor
	mu.Unlock()

	if level != "" {
		SetLevel(level)
	}
	if format != "" {
		SetFormat(format)
	}
	reconfigure()
}

// SetLevel sets the minimum log level. Unknown names are ignored.
func SetLevel(level string) {
	l, ok := ParseLevel(level)
	if !ok {
		return
	}
	currentLevel.Store(int32(l))
	reconfigure()
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	return Level(currentLevel.Load())
}

// SetFormat switches between "text" and "json". Other values are ignored.
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// logAt is the single sink for the leveled helpers.
func logAt(ctx context.Context, l Level, msg string, args []any) {
	if l < GetLevel() {
		return
	}
	getLogger().Log(ctx, slogLevels[l], msg, appendContextFields(ctx, args)...)
}

// Debug logs at debug level: Debug("message", "key1", value1, ...).
func Debug(msg string, args ...any) { logAt(context.Background(), LevelDebug, msg, args) }

func Info(msg string, args ...any) { logAt(context.Background(), LevelInfo, msg, args) }

func Warn(msg string, args ...any) { logAt(context.Background(), LevelWarn, msg, args) }

func Error(msg string, args ...any) { logAt(context.Background(), LevelError, msg, args) }

// DebugCtx logs at debug level, prefixing the fields of the LogContext
// carried by ctx (trace, operation, request id).
func DebugCtx(ctx context.Context, msg string, args ...any) { logAt(ctx, LevelDebug, msg, args) }

func InfoCtx(ctx context.Context, msg string, args ...any) { logAt(ctx, LevelInfo, msg, args) }

func WarnCtx(ctx context.Context, msg string, args ...any) { logAt(ctx, LevelWarn, msg, args) }

func ErrorCtx(ctx context.Context, msg string, args ...any) { logAt(ctx, LevelError, msg, args) }

// appendContextFields puts LogContext fields ahead of args.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	fields := make([]any, 0, 8+len(args))
	for _, f := range [...]struct{ key, value string }{
		{KeyTraceID, lc.TraceID},
		{KeySpanID, lc.SpanID},
		{KeyOperation, lc.Operation},
		{KeyRequestID, lc.RequestID},
	} {
		if f.value != "" {
			fields = append(fields, f.key, f.value)
		}
	}
	return append(fields, args...)
}

// With returns a logger carrying args on every record.
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}

// Duration returns the milliseconds elapsed since start.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
