package xbreaker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCallsTotal  = "xbreaker.calls.total"
	metricTransitions = "xbreaker.state.transitions"
)

// Metrics 断路器指标
//
// nil *Metrics 的方法为空操作。
type Metrics struct {
	calls       metric.Int64Counter
	transitions metric.Int64Counter
}

// NewMetrics 创建指标收集器，meterProvider 为 nil 时返回 nil
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}
	meter := meterProvider.Meter("xbreaker")

	calls, err := meter.Int64Counter(metricCallsTotal,
		metric.WithDescription("断路器调用数，按结果分类"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter(metricTransitions,
		metric.WithDescription("断路器状态切换次数"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{calls: calls, transitions: transitions}, nil
}

func (m *Metrics) recordCall(ctx context.Context, name, outcome string) {
	if m == nil {
		return
	}
	m.calls.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) recordTransition(ctx context.Context, name string, to State) {
	if m == nil {
		return
	}
	m.transitions.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("to", to.String()),
	))
}
