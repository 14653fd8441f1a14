package trace

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "deepresearch"

// Config selects the OTLP/HTTP collector. An empty Endpoint disables export.
type Config struct {
	Endpoint string // host:port
	URLPath  string
	APIKey   string // sent as a bearer token
}

func (c Config) Enabled() bool { return c.Endpoint != "" }

func (c Config) exporterOptions() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(c.Endpoint),
		otlptracehttp.WithInsecure(),
	}
	if c.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(c.URLPath))
	}
	if c.APIKey != "" {
		opts = append(opts, otlptracehttp.WithHeaders(map[string]string{
			"Authorization": "Bearer " + c.APIKey,
		}))
	}
	return opts
}

type errorHandler struct{}

func (errorHandler) Handle(err error) {
	slog.Error("trace: otel", "error", err)
}

// Init installs the global tracer provider and returns its shutdown. When
// tracing is disabled spans go to the default no-op provider.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled() {
		slog.Debug("trace: disabled")
		return func(context.Context) error { return nil }, nil
	}
	otel.SetErrorHandler(errorHandler{})

	exporter, err := otlptracehttp.New(ctx, cfg.exporterOptions()...)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(spanLogger{}),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	slog.Debug("trace: exporting", "endpoint", cfg.Endpoint, "url_path", cfg.URLPath, "has_api_key", cfg.APIKey != "")
	return tp.Shutdown, nil
}

// spanLogger logs every finished span at debug level.
type spanLogger struct{}

func (spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (spanLogger) OnEnd(s sdktrace.ReadOnlySpan) {
	slog.Debug("trace: span ended",
		"name", s.Name(),
		"trace_id", s.SpanContext().TraceID().String(),
		"duration", s.EndTime().Sub(s.StartTime()),
		"status", s.Status().Code.String(),
	)
}

func (spanLogger) Shutdown(context.Context) error   { return nil }
func (spanLogger) ForceFlush(context.Context) error { return nil }

func Tracer() trace.Tracer {
	return otel.Tracer(serviceName)
}
