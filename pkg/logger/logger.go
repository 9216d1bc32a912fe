// Package logger provides a colored slog handler for terminal output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	persistColor = color.New(color.FgGreen)
	debugColor   = color.New(color.FgHiBlack)
	keyColor     = color.New(color.FgCyan)
)

// persistMarkers select info messages about writing results, highlighted in green.
var persistMarkers = []string{"persist", "saved", "writing", "wrote"}

// ColorHandler is a slog.Handler that renders records as single colored lines.
type ColorHandler struct {
	opts   slog.HandlerOptions
	w      io.Writer
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

// NewColorHandler creates a handler writing to w.
func NewColorHandler(w io.Writer, opts *slog.HandlerOptions) *ColorHandler {
	h := &ColorHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

// NewDefaultLogger creates a colored logger on stderr at the given level.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Enabled implements slog.Handler
func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler
func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	if !r.Time.IsZero() {
		b.WriteString(r.Time.Format("15:04:05.000"))
		b.WriteByte(' ')
	}

	level := fmt.Sprintf("%-5s", r.Level.String())
	msg := r.Message
	switch {
	case r.Level >= slog.LevelError:
		level = errorColor.Sprint(level)
		msg = errorColor.Sprint(msg)
	case r.Level >= slog.LevelWarn:
		level = warnColor.Sprint(level)
		msg = warnColor.Sprint(msg)
	case r.Level < slog.LevelInfo:
		level = debugColor.Sprint(level)
	case isPersistMessage(msg):
		msg = persistColor.Sprint(msg)
	}
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)

	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs implements slog.Handler
func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr{}, h.attrs...)
	prefix := strings.Join(h.groups, ".")
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

// WithGroup implements slog.Handler
func (h *ColorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, key, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(keyColor.Sprint(key))
	b.WriteByte('=')
	val := a.Value.String()
	if strings.ContainsAny(val, " \t\n\"") {
		val = fmt.Sprintf("%q", val)
	}
	b.WriteString(val)
}

func isPersistMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range persistMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
