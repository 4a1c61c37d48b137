package xlimit

import (
	"context"
	"time"

	"github.com/omeyang/xguard/pkg/observability/xlog"
)

// DefaultKeyPrefix 限流键默认前缀
const DefaultKeyPrefix = "ratelimit:"

// Limiter 固定窗口限流器
type Limiter struct {
	store   CounterStore
	prefix  string
	now     func() time.Time
	logger  xlog.Logger
	metrics *Metrics
}

// Option 限流器选项
type Option func(*Limiter)

// WithKeyPrefix 设置键前缀
func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

// WithClock 注入时钟，用于计算 RetryAfter
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger xlog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// New 创建限流器
func New(store CounterStore, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	l := &Limiter{
		store:  store,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
		logger: xlog.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Key 返回 identity 在 policy 下的存储键
func (l *Limiter) Key(identity string, p Policy) string {
	return l.prefix + p.Name + ":" + identity
}

// Allow 计数一次并返回结果
//
// 被拒绝时 Result.Allowed=false、Remaining=0，err 为 nil；err 只表示存储失败。
func (l *Limiter) Allow(ctx context.Context, identity string, p Policy) (Result, error) {
	if identity == "" {
		return Result{}, ErrEmptyIdentity
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	key := l.Key(identity, p)
	w, allowed, err := l.store.Hit(ctx, key, p.MaxRequests, p.Window)
	if err != nil {
		l.logger.Error(ctx, "rate limit check failed",
			xlog.Component("xlimit"), xlog.Key(key), xlog.Err(err))
		return Result{}, err
	}

	res := l.result(key, p, w, allowed)
	l.metrics.recordAllow(ctx, p.Name, allowed, time.Since(start))
	if !allowed {
		l.logger.Debug(ctx, "rate limited",
			xlog.Component("xlimit"), xlog.Key(key), xlog.Duration(res.RetryAfter))
	}
	return res, nil
}

// Query 查看当前窗口而不计数
func (l *Limiter) Query(ctx context.Context, identity string, p Policy) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	key := l.Key(identity, p)
	w, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{
			Allowed:   true,
			Limit:     p.MaxRequests,
			Remaining: p.MaxRequests,
			ResetAt:   l.now().Add(p.Window),
			Policy:    p.Name,
			Key:       key,
		}, nil
	}
	return l.result(key, p, w, w.Count < p.MaxRequests), nil
}

// Reset 清除 identity 在 policy 下的窗口
func (l *Limiter) Reset(ctx context.Context, identity string, p Policy) error {
	return l.store.Delete(ctx, l.Key(identity, p))
}

func (l *Limiter) result(key string, p Policy, w Window, allowed bool) Result {
	res := Result{
		Allowed: allowed,
		Limit:   p.MaxRequests,
		ResetAt: w.ResetAt,
		Policy:  p.Name,
		Key:     key,
	}
	if allowed {
		res.Remaining = max(0, p.MaxRequests-w.Count)
	} else {
		res.RetryAfter = max(w.ResetAt.Sub(l.now()), time.Millisecond)
	}
	return res
}
