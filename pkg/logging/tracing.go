package logging

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SetupTracing installs a global tracer provider exporting over OTLP/HTTP to
// endpointURL. The returned func flushes and shuts it down. When the exporter
// cannot be built, tracing stays disabled and the returned func is a no-op.
func SetupTracing(ctx context.Context, serviceName, endpointURL string, log *logrus.Logger) func() {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpointURL))
	if err != nil {
		if log != nil {
			log.WithError(err).Warn("tracing: exporter setup failed, tracing disabled")
		}
		return func() {}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil && log != nil {
			log.WithError(err).Warn("tracing: shutdown failed")
		}
	}
}
