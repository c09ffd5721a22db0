package tracing

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// compositeExporter fans spans out to several SpanExporters. The first
// exporter error aborts the batch and is returned to the processor.
type compositeExporter struct {
	exporters []sdktrace.SpanExporter
}

func newCompositeExporter(exporters ...sdktrace.SpanExporter) *compositeExporter {
	return &compositeExporter{exporters: exporters}
}

func (ce *compositeExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, exporter := range ce.exporters {
		if err := exporter.ExportSpans(ctx, spans); err != nil {
			return err
		}
	}
	return nil
}

func (ce *compositeExporter) Shutdown(ctx context.Context) error {
	for _, exporter := range ce.exporters {
		if err := exporter.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
