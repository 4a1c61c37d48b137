package xqueue

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricEnqueued  = "xqueue.jobs.enqueued"
	metricProcessed = "xqueue.jobs.processed"
	metricDuration  = "xqueue.job.duration"
)

// 处理结果
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
)

// Metrics 队列指标，nil *Metrics 的方法为空操作
type Metrics struct {
	enqueued  metric.Int64Counter
	processed metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics 创建指标收集器，meterProvider 为 nil 时返回 nil
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}
	meter := meterProvider.Meter("xqueue")

	enqueued, err := meter.Int64Counter(metricEnqueued,
		metric.WithDescription("新提交的任务数（不含去重）"),
		metric.WithUnit("{job}"))
	if err != nil {
		return nil, err
	}
	processed, err := meter.Int64Counter(metricProcessed,
		metric.WithDescription("任务处理次数"),
		metric.WithUnit("{job}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(metricDuration,
		metric.WithDescription("单次任务处理耗时"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{enqueued: enqueued, processed: processed, duration: duration}, nil
}

func (m *Metrics) recordEnqueue(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.enqueued.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) recordProcessed(ctx context.Context, kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.processed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}
