package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/sitemap-frontier/internal/telemetry"
)

func TestInitInstallsProviderAndPropagator(t *testing.T) {
	ctx := context.Background()
	tp, shutdown, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName: "sitemap-frontier",
		Environment: "test",
		SampleRatio: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, shutdown(context.Background())) })

	assert.Same(t, tp, otel.GetTracerProvider())

	spanCtx, span := otel.Tracer("test").Start(ctx, "op")
	defer span.End()
	assert.True(t, span.SpanContext().IsSampled())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(spanCtx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))
}

func TestInitZeroRatioDoesNotSample(t *testing.T) {
	_, shutdown, err := telemetry.Init(context.Background(), telemetry.Options{ServiceName: "svc"})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, shutdown(context.Background())) })

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.False(t, span.SpanContext().IsSampled())
}

func TestInitValidation(t *testing.T) {
	_, _, err := telemetry.Init(context.Background(), telemetry.Options{ServiceName: "svc", SampleRatio: 2})
	require.Error(t, err)

	_, _, err = telemetry.Init(context.Background(), telemetry.Options{SampleRatio: 1})
	require.Error(t, err)
}
