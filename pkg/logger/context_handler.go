package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor pulls an attribute out of a context, e.g. the job being
// processed or the request ID. It reports false when the context has none.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// ContextHandler is a slog.Handler that appends the attributes of its
// extractors to every record logged with a context.
type ContextHandler struct {
	next       slog.Handler
	extractors []ContextExtractor
}

// NewContextHandler wraps next. Nil extractors are dropped.
func NewContextHandler(next slog.Handler, extractors ...ContextExtractor) *ContextHandler {
	h := &ContextHandler{next: next, extractors: make([]ContextExtractor, 0, len(extractors))}
	for _, ex := range extractors {
		if ex != nil {
			h.extractors = append(h.extractors, ex)
		}
	}
	return h
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle runs the extractors on every call so values that change per job or
// request are never cached.
func (h *ContextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if len(h.extractors) == 0 || ctx == nil {
		return h.next.Handle(ctx, rec)
	}

	var extra []slog.Attr
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			extra = append(extra, attr)
		}
	}
	if len(extra) == 0 {
		return h.next.Handle(ctx, rec)
	}

	rec = rec.Clone()
	rec.AddAttrs(extra...)
	return h.next.Handle(ctx, rec)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name), extractors: h.extractors}
}
