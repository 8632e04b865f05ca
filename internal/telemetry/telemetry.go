// Package telemetry installs the OpenTelemetry meter and tracer providers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporters selectable with TELEMETRY_EXPORTER
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Providers holds the SDK providers so they can be flushed on shutdown
type Providers struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

// Options configures Setup
type Options struct {
	ServiceName string
	Exporter    string
	// Interval between metric exports
	Interval time.Duration
	// Writer receives stdout exports, os.Stdout when nil
	Writer io.Writer
}

// New builds meter and tracer providers. With ExporterNone spans and
// measurements are still recorded but nothing is exported.
func New(opts Options) (*Providers, error) {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}

	res := resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	tracerOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch opts.Exporter {
	case "", ExporterNone:
	case ExporterStdout:
		metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.Writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(opts.Interval))))
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(traceExporter))
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q (use none or stdout)", opts.Exporter)
	}

	return &Providers{
		MeterProvider:  sdkmetric.NewMeterProvider(meterOpts...),
		TracerProvider: sdktrace.NewTracerProvider(tracerOpts...),
	}, nil
}

// SetGlobal makes p the process-wide meter and tracer provider
func (p *Providers) SetGlobal() {
	otel.SetMeterProvider(p.MeterProvider)
	otel.SetTracerProvider(p.TracerProvider)
}

// Shutdown flushes pending exports and stops both providers
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(p.MeterProvider.Shutdown(ctx), p.TracerProvider.Shutdown(ctx))
}
