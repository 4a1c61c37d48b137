package xbreaker

import (
	"context"
	"errors"
	"fmt"
)

// FallbackKind 降级策略类型
type FallbackKind int

const (
	FallbackNone FallbackKind = iota
	FallbackStatic
	FallbackEnqueue
	FallbackFunc
)

func (k FallbackKind) String() string {
	switch k {
	case FallbackNone:
		return "none"
	case FallbackStatic:
		return "static"
	case FallbackEnqueue:
		return "enqueue"
	case FallbackFunc:
		return "func"
	default:
		return fmt.Sprintf("FallbackKind(%d)", int(k))
	}
}

// Enqueuer 降级投递目标，xqueue.Queue 实现了该接口
type Enqueuer interface {
	EnqueueJob(ctx context.Context, kind string, payload any) error
}

// Fallback 降级策略
//
// 零值等价于 NoFallback。默认只在短路时生效，[Fallback.OnFailure] 使其在操作失败时同样生效。
type Fallback[T any] struct {
	kind      FallbackKind
	value     T
	enqueuer  Enqueuer
	jobKind   string
	payload   any
	fn        func(ctx context.Context, cause error) (T, error)
	onFailure bool
}

// NoFallback 短路时返回 *BreakerError
func NoFallback[T any]() Fallback[T] {
	return Fallback[T]{kind: FallbackNone}
}

// StaticValue 短路时返回固定值
func StaticValue[T any](v T) Fallback[T] {
	return Fallback[T]{kind: FallbackStatic, value: v}
}

// Enqueue 短路时把 payload 以 jobKind 写入队列，成功后返回零值与 nil
func Enqueue[T any](q Enqueuer, jobKind string, payload any) Fallback[T] {
	return Fallback[T]{kind: FallbackEnqueue, enqueuer: q, jobKind: jobKind, payload: payload}
}

// FuncFallback 短路时调用 fn，cause 为短路错误（或操作错误）
func FuncFallback[T any](fn func(ctx context.Context, cause error) (T, error)) Fallback[T] {
	return Fallback[T]{kind: FallbackFunc, fn: fn}
}

// Kind 返回策略类型
func (f Fallback[T]) Kind() FallbackKind { return f.kind }

// OnFailure 返回同时在操作失败时生效的副本
func (f Fallback[T]) OnFailure() Fallback[T] {
	f.onFailure = true
	return f
}

func (f Fallback[T]) apply(ctx context.Context, cause error) (T, error) {
	var zero T
	switch f.kind {
	case FallbackNone:
		return zero, cause
	case FallbackStatic:
		return f.value, nil
	case FallbackEnqueue:
		if f.enqueuer == nil {
			return zero, cause
		}
		if err := f.enqueuer.EnqueueJob(ctx, f.jobKind, f.payload); err != nil {
			return zero, fmt.Errorf("xbreaker: fallback enqueue %s: %w", f.jobKind, errors.Join(cause, err))
		}
		return zero, nil
	case FallbackFunc:
		if f.fn == nil {
			return zero, cause
		}
		return f.fn(ctx, cause)
	default:
		return zero, cause
	}
}
