// Package telemetry installs OpenTelemetry tracing for the frontier.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Options configures tracing.
type Options struct {
	ServiceName string
	Version     string
	Environment string
	// ProjectID enables export to Google Cloud Trace. Empty keeps spans local.
	ProjectID string
	// SampleRatio is the fraction of root traces sampled, in [0, 1].
	SampleRatio float64
}

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(context.Context) error

// Init sets the global tracer provider and the W3C trace-context and baggage
// propagators used when tasks cross the work queue.
func Init(ctx context.Context, opts Options) (*sdktrace.TracerProvider, ShutdownFunc, error) {
	if opts.SampleRatio < 0 || opts.SampleRatio > 1 {
		return nil, nil, fmt.Errorf("sample ratio must be within [0, 1], got %v", opts.SampleRatio)
	}
	if opts.ServiceName == "" {
		return nil, nil, errors.New("service name is required")
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.Version),
		semconv.DeploymentEnvironment(opts.Environment),
	}
	if opts.ProjectID != "" {
		attrs = append(attrs, semconv.CloudProviderGCP, semconv.CloudAccountID(opts.ProjectID))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	}
	if opts.ProjectID != "" {
		exporter, err := texporter.New(texporter.WithProjectID(opts.ProjectID))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create google trace exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)
	return tp, tp.Shutdown, nil
}
