// Package tracing records timed stage trees for long operations such as
// index rebuilds. Spans travel on the context; a finished tree is written to
// a slog.Logger one line per span.
package tracing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type spanKey struct{}

// Span is one timed stage. Children are appended by StartChildSpan.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any

	mu sync.Mutex
}

func newSpan(name, traceID string) *Span {
	return &Span{Name: name, TraceID: traceID, StartTime: time.Now(), Attrs: make(map[string]any)}
}

// StartSpan opens a root span identified by traceID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey{}, span), span
}

// StartChildSpan opens a span under the one carried by ctx. Without a parent
// the span is detached and has no trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		span := newSpan(name, "")
		return context.WithValue(ctx, spanKey{}, span), span
	}
	child := newSpan(name, parent.TraceID)
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

func (s *Span) End() {
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SetError records err under "error". A nil err is ignored.
func (s *Span) SetError(err error) {
	if err != nil {
		s.SetAttr("error", err.Error())
	}
}

// Stages flattens the tree into slash-joined paths ("index.rebuild/encode")
// mapped to their durations.
func (s *Span) Stages() map[string]time.Duration {
	out := make(map[string]time.Duration)
	s.walk(nil, func(path []string, _ *Span, d time.Duration, _ map[string]any) {
		out[strings.Join(path, "/")] = d
	})
	return out
}

// Log writes one line per span to log, parents first.
func (s *Span) Log(log *slog.Logger) {
	s.walk(nil, func(path []string, span *Span, d time.Duration, attrs map[string]any) {
		args := []any{
			"trace_id", span.TraceID,
			"stage", strings.Join(path, "/"),
			"duration_ms", d.Milliseconds(),
		}
		for k, v := range attrs {
			args = append(args, k, v)
		}
		log.Info("span", args...)
	})
}

func (s *Span) walk(prefix []string, visit func(path []string, span *Span, d time.Duration, attrs map[string]any)) {
	path := append(append([]string(nil), prefix...), s.Name)

	s.mu.Lock()
	attrs := make(map[string]any, len(s.Attrs))
	for k, v := range s.Attrs {
		attrs[k] = v
	}
	children := append([]*Span(nil), s.Children...)
	d := s.Duration
	s.mu.Unlock()

	visit(path, s, d, attrs)
	for _, child := range children {
		child.walk(path, visit)
	}
}
