// Package telemetry wires the gateway's OpenTelemetry trace provider.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Options configures tracing.
type Options struct {
	// ServiceName tags every exported span.
	ServiceName string
	// PrettyPrint formats exported spans for human reading; meant for
	// development setups where spans land on stdout.
	PrettyPrint bool
}

// Setup builds a tracer provider exporting to stdout, installs it as
// the global provider (otelhttp resolves its tracer through the
// global), and returns a shutdown function that flushes pending spans.
func Setup(opts Options, logger *slog.Logger) (func(context.Context) error, error) {
	var exporterOpts []stdouttrace.Option
	if opts.PrettyPrint {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(opts.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("telemetry initialized", slog.String("service", opts.ServiceName))

	return tp.Shutdown, nil
}
