package logger

import "context"

type traceKey struct{}

// TraceContext carries run-scoped identifiers for log correlation.
type TraceContext struct {
	RunID string
	Entry string
}

// ContextWithTrace returns a derived context carrying the provided trace metadata.
func ContextWithTrace(ctx context.Context, trace TraceContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, trace)
}

// WithEntry returns a derived context whose trace also names the manifest entry being processed.
func WithEntry(ctx context.Context, entry string) context.Context {
	trace := TraceFromContext(ctx)
	trace.Entry = entry
	return ContextWithTrace(ctx, trace)
}

// TraceFromContext extracts a TraceContext from ctx.
func TraceFromContext(ctx context.Context) TraceContext {
	if ctx == nil {
		return TraceContext{}
	}
	if trace, ok := ctx.Value(traceKey{}).(TraceContext); ok {
		return trace
	}
	return TraceContext{}
}

func traceFieldsFromContext(ctx context.Context) []Field {
	return TraceFromContext(ctx).fields()
}

func (t TraceContext) fields() []Field {
	var fields []Field
	if t.RunID != "" {
		fields = append(fields, String("run_id", t.RunID))
	}
	if t.Entry != "" {
		fields = append(fields, String("entry", t.Entry))
	}
	return fields
}
