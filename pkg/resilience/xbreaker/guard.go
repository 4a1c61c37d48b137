package xbreaker

import (
	"context"

	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

// Guard 断路器 + 重试
//
// 重试在断路器内部进行，一次逻辑调用只向断路器报告最终结果。
// 断路器打开时不执行操作，也不重试。
type Guard struct {
	breaker *Breaker
	retry   *xretry.Executor
}

// NewGuard 组合断路器与重试执行器，retry 为 nil 时只做断路
func NewGuard(b *Breaker, retry *xretry.Executor) *Guard {
	if retry == nil {
		retry = xretry.New(xretry.Policy{MaxAttempts: 1})
	}
	return &Guard{breaker: b, retry: retry}
}

// Breaker 返回断路器
func (g *Guard) Breaker() *Breaker { return g.breaker }

// Do 执行操作
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilFunc
	}
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.retry.Do(ctx, fn)
	})
}

// Call 执行带返回值的操作并应用降级
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error), fallback Fallback[T]) (T, error) {
	if fn == nil {
		var zero T
		return zero, ErrNilFunc
	}
	return Execute(ctx, g.breaker, func(ctx context.Context) (T, error) {
		return xretry.Execute(ctx, g.retry, fn)
	}, fallback)
}
