package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// installRecorder routes global spans to an in-memory recorder for one test
func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestProviders_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Enabled: false, ServiceName: "ledgerlink"}

	tp, err := NewTracerProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("x"))
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := NewMeterProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := NewLoggerProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, zap.InfoLevel))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestEnableSpanProfiles(t *testing.T) {
	t.Run("no-op when tracing is off", func(t *testing.T) {
		previous := otel.GetTracerProvider()
		tp, err := NewTracerProvider(context.Background(), Config{ServiceName: "ledgerlink"}, zap.NewNop())
		require.NoError(t, err)

		tp.EnableSpanProfiles()

		assert.False(t, tp.SpanProfilesEnabled())
		assert.Equal(t, previous, otel.GetTracerProvider())
	})

	t.Run("wraps the global provider", func(t *testing.T) {
		previous := otel.GetTracerProvider()
		sdk := sdktrace.NewTracerProvider()
		t.Cleanup(func() {
			otel.SetTracerProvider(previous)
			_ = sdk.Shutdown(context.Background())
		})
		tp := &TracerProvider{provider: sdk, logger: zap.NewNop()}

		tp.EnableSpanProfiles()
		tp.EnableSpanProfiles()

		assert.True(t, tp.SpanProfilesEnabled())
		assert.NotEqual(t, sdk, otel.GetTracerProvider())
	})
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestStartSpan_EndSpan(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := StartSpan(context.Background(), "reconcile.contact", AttrTenantID.String("t1"))
	assert.NotEmpty(t, GetTraceID(ctx))
	EndSpan(span, errors.New("boom"))

	_, ok := StartSpan(context.Background(), "reconcile.item")
	EndSpan(ok, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "reconcile.contact", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}
