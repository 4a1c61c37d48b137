package xmetrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/omeyang/xguard/pkg/context/xctx"
)

func TestStart_NilObserver(t *testing.T) {
	//nolint:staticcheck // 测试 nil context
	ctx, span := Start(nil, nil, SpanOptions{})
	assert.NotNil(t, ctx)
	assert.IsType(t, noopSpan{}, span)
	span.End(Result{})
}

func TestOTelObserver(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	obs, err := NewOTelObserver(WithMeterProvider(mp), WithTracerProvider(tp))
	require.NoError(t, err)

	ctx, span := Start(context.Background(), obs, SpanOptions{
		Component: "xbreaker",
		Operation: "execute",
		Kind:      KindClient,
		Attrs:     []Attr{String("name", "payment")},
	})
	assert.NotEmpty(t, xctx.TraceID(ctx))
	assert.NotEmpty(t, xctx.SpanID(ctx))

	span.End(Result{Err: errors.New("boom")})
	span.End(Result{})

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "xbreaker.execute", ended[0].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var total metricdata.Sum[int64]
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name == metricOperationTotal {
			total = m.Data.(metricdata.Sum[int64])
		}
	}
	require.Len(t, total.DataPoints, 1)
	assert.Equal(t, int64(1), total.DataPoints[0].Value)
	status, ok := total.DataPoints[0].Attributes.Value("status")
	require.True(t, ok)
	assert.Equal(t, "error", status.AsString())
}
