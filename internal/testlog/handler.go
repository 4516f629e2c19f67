// Package testlog provides a slog.Handler with deterministic output for
// examples and tests.
package testlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler prints the record index (starting from 0), level, message and
// attributes, without a timestamp.
type Handler struct {
	mu          *sync.Mutex
	index       *int
	out         io.Writer
	attrs       []slog.Attr
	groups      []string
	ignoreDebug bool
	ignore      []string
	ignoreKeys  map[string]bool
}

type Option func(*Handler)

// WithOutput redirects records from stdout to w.
func WithOutput(w io.Writer) Option {
	return func(h *Handler) {
		h.out = w
	}
}

func WithIgnoreDebug() Option {
	return func(h *Handler) {
		h.ignoreDebug = true
	}
}

// WithIgnorePrefixes drops records whose message starts with any prefix.
func WithIgnorePrefixes(prefixes ...string) Option {
	return func(h *Handler) {
		h.ignore = append(h.ignore, prefixes...)
	}
}

// WithIgnoreKeys omits attributes with the given keys, such as ids that
// change on every run.
func WithIgnoreKeys(keys ...string) Option {
	return func(h *Handler) {
		if h.ignoreKeys == nil {
			h.ignoreKeys = map[string]bool{}
		}
		for _, k := range keys {
			h.ignoreKeys[k] = true
		}
	}
}

func New(opts ...Option) *Handler {
	h := &Handler{mu: &sync.Mutex{}, index: new(int), out: os.Stdout}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level > slog.LevelDebug || !h.ignoreDebug
}

//nolint:gocritic
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	for _, prefix := range h.ignore {
		if strings.HasPrefix(r.Message, prefix) {
			return nil
		}
	}

	var parts []string
	for _, a := range h.attrs {
		if !h.ignoreKeys[a.Key] {
			parts = append(parts, formatAttr(a, ""))
		}
	}
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.ignoreKeys[a.Key] {
			return true
		}
		parts = append(parts, formatAttr(a, prefix))
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	line := fmt.Sprintf("[%d] %s: %s", *h.index, r.Level, r.Message)
	if len(parts) > 0 {
		line += " " + strings.Join(parts, ", ")
	}
	*h.index++
	_, err := fmt.Fprintln(h.out, line)
	return err
}

func formatAttr(a slog.Attr, prefix string) string {
	if a.Value.Kind() == slog.KindGroup {
		var parts []string
		for _, ga := range a.Value.Group() {
			parts = append(parts, formatAttr(ga, prefix+a.Key+"."))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s%s=%v", prefix, a.Key, a.Value)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	clone.attrs = h.attrs[:len(h.attrs):len(h.attrs)]
	for _, a := range attrs {
		a.Key = prefix + a.Key
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(h.groups[:len(h.groups):len(h.groups)], name)
	return &clone
}
