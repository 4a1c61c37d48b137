package xbreaker

import "context"

// Execute 通过断路器执行带返回值的操作，短路时走 fallback
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error), fallback Fallback[T]) (T, error) {
	var result T
	if ctx == nil {
		return result, ErrNilContext
	}
	if fn == nil {
		return result, ErrNilFunc
	}
	err := b.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err == nil {
		return result, nil
	}
	if IsOpen(err) || fallback.onFailure {
		return fallback.apply(ctx, err)
	}
	return result, err
}
