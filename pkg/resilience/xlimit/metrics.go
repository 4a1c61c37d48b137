package xlimit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal = "xlimit.requests.total"
	metricDeniedTotal   = "xlimit.denied.total"
	metricFallbackTotal = "xlimit.fallback.total"
	metricCheckDuration = "xlimit.check.duration"
)

// Metrics 限流指标，nil *Metrics 的方法为空操作
type Metrics struct {
	requests metric.Int64Counter
	denied   metric.Int64Counter
	fallback metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics 创建指标收集器，meterProvider 为 nil 时返回 nil
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}
	meter := meterProvider.Meter("xlimit")

	requests, err := meter.Int64Counter(metricRequestsTotal,
		metric.WithDescription("限流检查总数"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	denied, err := meter.Int64Counter(metricDeniedTotal,
		metric.WithDescription("被拒绝的请求数"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	fallback, err := meter.Int64Counter(metricFallbackTotal,
		metric.WithDescription("共享存储降级到本地存储的次数"),
		metric.WithUnit("{fallback}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(metricCheckDuration,
		metric.WithDescription("限流检查耗时"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5))
	if err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, denied: denied, fallback: fallback, duration: duration}, nil
}

func (m *Metrics) recordAllow(ctx context.Context, policy string, allowed bool, d time.Duration) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.Bool("allowed", allowed),
	)
	m.requests.Add(ctx, 1, attrs)
	if !allowed {
		m.denied.Add(ctx, 1, attrs)
	}
	m.duration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) recordFallback(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.fallback.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("op", op)))
}
