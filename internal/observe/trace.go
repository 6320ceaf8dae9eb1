package observe

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of every sensekit span.
const tracerName = "github.com/MrWong99/sensekit"

// Tracer returns the sensekit tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span under the sensekit tracer. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// Annotate sets attrs on the span carried by ctx. Non-recording spans are
// left untouched.
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attrs...)
}

// SpeakAttributes describes a speak request. The text itself is not
// recorded, only its length in runes.
func SpeakAttributes(text string, priority int, positioned, allowRepeat bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("speech.text_length", utf8.RuneCountInString(text)),
		attribute.Int("speech.priority", priority),
		attribute.Bool("speech.positioned", positioned),
		attribute.Bool("speech.allow_repeat", allowRepeat),
	}
}

// CorrelationID returns the hex trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger is [WithTrace] applied to [slog.Default].
func Logger(ctx context.Context) *slog.Logger {
	return WithTrace(ctx, slog.Default())
}

// WithTrace returns l with trace_id and span_id attributes taken from ctx.
// Without a valid span context l is returned as is.
func WithTrace(ctx context.Context, l *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
