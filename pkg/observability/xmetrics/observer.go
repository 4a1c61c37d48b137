package xmetrics

import "context"

// Kind 跨度类型
type Kind int

const (
	KindInternal Kind = iota
	KindServer
	// KindClient 出站调用（邮件 API、Webhook）
	KindClient
)

// Status 调用结果
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Attr 跨度与指标属性，Value 支持 string、int、int64、bool
type Attr struct {
	Key   string
	Value any
}

func String(key, value string) Attr { return Attr{Key: key, Value: value} }

func Int(key string, value int) Attr { return Attr{Key: key, Value: value} }

// SpanOptions 开始一次观测
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result 观测结束，Status 为空时按 Err 推导
type Result struct {
	Status Status
	Err    error
	Attrs  []Attr
}

// Span 一次观测
type Span interface {
	End(result Result)
}

// Observer 出站调用的观测入口
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 不做任何记录，测试与未配置 OTel 时使用
type NoopObserver struct{}

func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(Result) {}

// Start 开始观测，observer 为 nil 或返回 nil 时退化为空实现，返回值总是非 nil
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, noopSpan{}
	}
	next, span := observer.Start(ctx, opts)
	if next == nil {
		next = ctx
	}
	if span == nil {
		span = noopSpan{}
	}
	return next, span
}
