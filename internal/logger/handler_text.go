package logger

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// ColorTextHandler writes one line per record:
//
//	[2006-01-02 15:04:05] [INFO] session refreshed auth_type=bearer delay=4m50s
//
// Keys are cyan and levels colored when useColor is set.
type ColorTextHandler struct {
	opts     slog.HandlerOptions
	w        io.Writer
	mu       *sync.Mutex
	attrs    []slog.Attr
	prefix   string // joined group names, with trailing dot
	useColor bool
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, useColor bool) *ColorTextHandler {
	h := &ColorTextHandler{w: w, mu: &sync.Mutex{}, useColor: useColor}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *ColorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return level >= threshold
}

func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(r.Time.Format(time.DateTime))
	sb.WriteString("] [")
	h.writeLevel(&sb, r.Level)
	sb.WriteString("] ")
	sb.WriteString(r.Message)

	for _, a := range h.attrs {
		h.writeAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&sb, h.prefix, a)
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *ColorTextHandler) writeLevel(sb *strings.Builder, level slog.Level) {
	name, color := "ERROR", ansiRed
	switch {
	case level < slog.LevelInfo:
		name, color = "DEBUG", ansiGray
	case level < slog.LevelWarn:
		name, color = "INFO", ansiGreen
	case level < slog.LevelError:
		name, color = "WARN", ansiYellow
	}
	if !h.useColor {
		sb.WriteString(name)
		return
	}
	sb.WriteString(color + name + ansiReset)
}

// writeAttr appends " key=value". Groups are flattened into dotted keys and
// empty attrs are skipped.
func (h *ColorTextHandler) writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.writeAttr(sb, prefix, ga)
		}
		return
	}

	sb.WriteByte(' ')
	if h.useColor {
		sb.WriteString(ansiCyan + prefix + a.Key + ansiReset)
	} else {
		sb.WriteString(prefix + a.Key)
	}
	sb.WriteByte('=')
	sb.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return quoteIfNeeded(v.String())
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quoteIfNeeded(err.Error())
		}
		return quoteIfNeeded(v.String())
	default:
		// ints, bools and durations print cleanly
		return v.String()
	}
}

// quoteIfNeeded quotes values that would otherwise break key=value parsing.
func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func (h *ColorTextHandler) clone() *ColorTextHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	return &c
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return c
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix += name + "."
	return c
}
