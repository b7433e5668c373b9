package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// EndpointKey is the context key for the endpoint being recorded.
	EndpointKey contextKey = "endpoint"

	// InstanceKey is the context key for the collector instance id.
	InstanceKey contextKey = "instance"

	// CallerKey is the context key for caller identifiers.
	CallerKey contextKey = "caller"

	// JobKey is the context key for scheduled job names.
	JobKey contextKey = "job"

	// TraceIDKey is the context key for trace IDs.
	TraceIDKey contextKey = "trace_id"
)

var contextKeys = []contextKey{InstanceKey, JobKey, EndpointKey, CallerKey, TraceIDKey}

// WithEndpoint adds an endpoint to the context.
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, EndpointKey, endpoint)
}

// WithInstance adds an instance id to the context.
func WithInstance(ctx context.Context, instance string) context.Context {
	return context.WithValue(ctx, InstanceKey, instance)
}

// WithCaller adds a caller identifier to the context.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// WithJob adds a scheduled job name to the context.
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, JobKey, job)
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// Get returns the string stored under key, or "".
func Get(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
func extractContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var fields []slog.Attr
	for _, key := range contextKeys {
		if v := Get(ctx, key); v != "" {
			fields = append(fields, slog.String(string(key), v))
		}
	}
	return fields
}

// contextHandler adds the fields stored in the record's context.
type contextHandler struct {
	next slog.Handler
}

func newContextHandler(next slog.Handler) slog.Handler {
	return &contextHandler{next: next}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if fields := extractContextFields(ctx); len(fields) > 0 {
		r = r.Clone()
		r.AddAttrs(fields...)
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
