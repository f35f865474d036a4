package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns the attributes carried by the context a record was logged with.
type ContextProvider func(ctx context.Context) []slog.Attr

// ContextHandler stamps each record with the mission and position its context
// carries. A key the record or the logger already set is not stamped again.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
	bound    map[string]bool // keys bound through WithAttrs
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider == nil {
		return h.inner.Handle(ctx, r)
	}
	tags := h.provider(ctx)
	if len(tags) == 0 {
		return h.inner.Handle(ctx, r)
	}
	set := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		set[a.Key] = true
		return true
	})
	for _, a := range tags {
		if !set[a.Key] && !h.bound[a.Key] {
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]bool, len(h.bound)+len(attrs))
	for k := range h.bound {
		bound[k] = true
	}
	for _, a := range attrs {
		bound[a.Key] = true
	}
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider, bound: bound}
}

// WithGroup nests later attributes, context tags included, under name.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
