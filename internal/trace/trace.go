// Package trace owns the process-wide OpenTelemetry tracer. Spans are
// exported to stdout or a file; tracing is off unless enabled.
package trace

import (
	"context"
	"io"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "supertrend-bot"
	ServiceVersion = "1.0.0"
)

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	sink     io.Closer
	enabled  bool
)

type Config struct {
	Enabled bool
	// File receives spans as JSON lines; empty means stdout.
	File string
	// SampleRatio in (0,1]; anything else samples every root span.
	SampleRatio float64
}

// ConfigFromEnv reads LOG_TRACING_ENABLED, LOG_TRACE_FILE and LOG_TRACE_SAMPLE_RATIO.
func ConfigFromEnv() Config {
	ratio, _ := strconv.ParseFloat(os.Getenv("LOG_TRACE_SAMPLE_RATIO"), 64)
	return Config{
		Enabled:     os.Getenv("LOG_TRACING_ENABLED") == "true",
		File:        os.Getenv("LOG_TRACE_FILE"),
		SampleRatio: ratio,
	}
}

func Init() error {
	return InitWithConfig(ConfigFromEnv())
}

// InitWithConfig installs the global tracer provider. On error tracing stays off.
func InitWithConfig(cfg Config) error {
	enabled = false
	if !cfg.Enabled {
		return nil
	}

	var opts []stdouttrace.Option
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		sink = f
		opts = append(opts, stdouttrace.WithWriter(f))
	} else {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return err
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(ServiceVersion),
	))
	if err != nil {
		return err
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}
	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(ServiceName)
	enabled = true
	return nil
}

// Shutdown flushes pending spans and closes the trace file.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	err := provider.Shutdown(ctx)
	provider, tracer, enabled = nil, nil, false
	if sink != nil {
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
		sink = nil
	}
	return err
}

// StartSpan starts a child span. With tracing off it returns ctx and its current span unchanged.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

func Enabled() bool {
	return enabled
}

// GetTraceFields returns the hex trace and span IDs of the span in ctx.
func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}
