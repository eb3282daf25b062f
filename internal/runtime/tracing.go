package runtime

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/joshsymonds/chronotriage"

// NewTracerProvider installs an SDK tracer provider with the given span processors
// as the global provider and returns a tracer plus its shutdown func.
// With no processors spans are sampled but dropped.
func NewTracerProvider(processors ...sdktrace.SpanProcessor) (trace.Tracer, func(context.Context) error) {
	opts := make([]sdktrace.TracerProviderOption, 0, len(processors))
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Tracer(tracerName), tp.Shutdown
}

// WriterSpanProcessor batches finished spans to w as JSON lines. Spans are
// flushed by the provider's shutdown func.
func WriterSpanProcessor(w io.Writer) (sdktrace.SpanProcessor, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}
	return sdktrace.NewBatchSpanProcessor(exp), nil
}
