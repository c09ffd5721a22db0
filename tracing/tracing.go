// Package tracing configures OpenTelemetry for the registry process: an
// environment-selected span exporter plus trace propagation for inbound
// requests. At debug log level spans are mirrored into the logger.
package tracing

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/version"
)

const (
	serviceName = "zpkg-registry"

	defaultSamplingRatio = 1
)

// InitOpenTelemetry installs the global tracer provider and propagators.
// The exporter is chosen from the standard OTEL_* environment variables.
func InitOpenTelemetry(ctx context.Context) error {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version.Version()),
	)

	exporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return err
	}

	var spanExporter sdktrace.SpanExporter = exporter
	if logrus.GetLevel() >= logrus.DebugLevel {
		debugExporter, err := stdouttrace.New(
			stdouttrace.WithWriter(&loggerWriter{logger: dcontext.GetLogger(ctx)}))
		if err != nil {
			return err
		}
		spanExporter = newCompositeExporter(exporter, debugExporter)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(defaultSamplingRatio)),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(spanExporter)),
	)
	otel.SetTracerProvider(provider)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(&loggerWriter{logger: dcontext.GetLogger(ctx)})

	return nil
}
