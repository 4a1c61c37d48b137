package xretry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Timer 等待计时器，测试中可替换以避免真实等待
type Timer = retry.Timer

// Executor 重试执行器，可被多个 goroutine 共享
type Executor struct {
	policy  Policy
	onRetry func(attempt int, err error, delay time.Duration)
	timer   Timer
}

// ExecutorOption 执行器选项
type ExecutorOption func(*Executor)

// WithOnRetry 设置重试回调：attempt 为刚失败的尝试序号（1-based），delay 为即将等待的时长。
// 最后一次尝试失败后不会回调。
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) ExecutorOption {
	return func(e *Executor) {
		if fn != nil {
			e.onRetry = fn
		}
	}
}

// WithTimer 替换等待计时器
func WithTimer(t Timer) ExecutorOption {
	return func(e *Executor) {
		if t != nil {
			e.timer = t
		}
	}
}

// New 创建执行器，策略非法时回退到 DefaultPolicy 的对应字段。
func New(policy Policy, opts ...ExecutorOption) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Backoff == "" {
		policy.Backoff = BackoffExponential
	}
	e := &Executor{policy: policy}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy 返回执行器使用的策略
func (e *Executor) Policy() Policy { return e.policy }

// Do 执行带重试的操作
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(e.options(ctx)...).Do(func() error {
		return fn(ctx)
	})
}

// Execute 执行带返回值的重试操作
func Execute[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](e.options(ctx)...).Do(func() (T, error) {
		return fn(ctx)
	})
}

// options 每次调用构建，闭包内的计数与待用延迟不跨调用共享。
func (e *Executor) options(ctx context.Context) []retry.Option {
	p := e.policy
	var (
		attempt int
		next    time.Duration
	)

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(p.MaxAttempts)),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			attempt++
			if !p.Retryable(err) || attempt >= p.MaxAttempts {
				return false
			}
			next = p.JitteredDelay(attempt)
			if e.onRetry != nil {
				e.onRetry(attempt, err, next)
			}
			return true
		}),
		retry.DelayType(func(_ uint, _ error, _ retry.DelayContext) time.Duration {
			return next
		}),
	}
	if e.timer != nil {
		opts = append(opts, retry.WithTimer(e.timer))
	}
	return opts
}
