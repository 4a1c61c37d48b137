package xlimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xguard/pkg/observability/xlog"
)

const defaultStoreTimeout = 100 * time.Millisecond

// errCallerDone 共享存储操作因调用方 ctx 结束而失败，不计为存储故障，也不降级到本地
var errCallerDone = errors.New("xlimit: caller context done")

var _ CounterStore = (*FailoverStore)(nil)

// FailoverStore 共享存储优先、本地存储兜底的计数存储
//
// 每次操作先访问共享存储；任何错误（超时、连接失败）都转到本地存储执行同一操作，
// 调用方看不到共享存储的错误。降级与恢复各记录一次日志，不按请求记录。
// 调用方 ctx 已结束导致的失败不算存储故障：直接返回该错误，不降级也不写本地计数。
//
// 可选的探测断路器在共享存储连续失败后暂时跳过它，避免每个请求都等待超时。
type FailoverStore struct {
	shared  CounterStore
	local   CounterStore
	timeout time.Duration
	logger  xlog.Logger
	metrics *Metrics
	probe   *gobreaker.TwoStepCircuitBreaker[struct{}]

	degraded atomic.Bool
}

// FailoverOption FailoverStore 选项
type FailoverOption func(*FailoverStore)

// WithStoreTimeout 单次共享存储操作的超时，<= 0 表示沿用调用方 ctx
func WithStoreTimeout(d time.Duration) FailoverOption {
	return func(s *FailoverStore) { s.timeout = d }
}

// WithFailoverLogger 设置日志
func WithFailoverLogger(l xlog.Logger) FailoverOption {
	return func(s *FailoverStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFailoverMetrics 记录降级次数
func WithFailoverMetrics(m *Metrics) FailoverOption {
	return func(s *FailoverStore) { s.metrics = m }
}

// WithProbeBreaker 共享存储连续失败 failures 次后跳过它 cooldown 时长，
// 之后放行一次探测，成功即恢复。
func WithProbeBreaker(failures uint32, cooldown time.Duration) FailoverOption {
	return func(s *FailoverStore) {
		if failures == 0 {
			return
		}
		s.probe = gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "xlimit-shared-store",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			IsExcluded: func(err error) bool {
				return errors.Is(err, errCallerDone) || errors.Is(err, context.Canceled)
			},
		})
	}
}

// NewFailoverStore 组合共享存储与本地存储
func NewFailoverStore(shared, local CounterStore, opts ...FailoverOption) (*FailoverStore, error) {
	if shared == nil || local == nil {
		return nil, ErrNilStore
	}
	s := &FailoverStore{
		shared:  shared,
		local:   local,
		timeout: defaultStoreTimeout,
		logger:  xlog.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FailoverStore) Type() string { return StoreFailover }

// Degraded 当前是否处于本地降级
func (s *FailoverStore) Degraded() bool { return s.degraded.Load() }

func (s *FailoverStore) Hit(ctx context.Context, key string, limit int64, window time.Duration) (Window, bool, error) {
	var (
		w       Window
		allowed bool
	)
	err := s.onShared(ctx, "hit", func(ctx context.Context) error {
		var err error
		w, allowed, err = s.shared.Hit(ctx, key, limit, window)
		return err
	})
	switch {
	case err == nil:
		return w, allowed, nil
	case errors.Is(err, errCallerDone):
		return Window{}, false, err
	}
	return s.local.Hit(ctx, key, limit, window)
}

func (s *FailoverStore) Get(ctx context.Context, key string) (Window, bool, error) {
	var (
		w  Window
		ok bool
	)
	err := s.onShared(ctx, "get", func(ctx context.Context) error {
		var err error
		w, ok, err = s.shared.Get(ctx, key)
		return err
	})
	switch {
	case err == nil:
		return w, ok, nil
	case errors.Is(err, errCallerDone):
		return Window{}, false, err
	}
	return s.local.Get(ctx, key)
}

func (s *FailoverStore) SetWithTTL(ctx context.Context, key string, w Window) error {
	err := s.onShared(ctx, "set", func(ctx context.Context) error {
		return s.shared.SetWithTTL(ctx, key, w)
	})
	if err == nil || errors.Is(err, errCallerDone) {
		return err
	}
	return s.local.SetWithTTL(ctx, key, w)
}

// Delete 两侧都删除，避免恢复后残留的本地窗口在下次降级时生效
func (s *FailoverStore) Delete(ctx context.Context, key string) error {
	_ = s.local.Delete(ctx, key)
	err := s.onShared(ctx, "delete", func(ctx context.Context) error {
		return s.shared.Delete(ctx, key)
	})
	if err != nil && (!s.degraded.Load() || errors.Is(err, errCallerDone)) {
		return err
	}
	return nil
}

// onShared 在共享存储上执行 op，维护降级状态。调用方 ctx 已结束时返回包装了 ctx.Err() 的 errCallerDone
func (s *FailoverStore) onShared(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var done func(error)
	if s.probe != nil {
		var err error
		done, err = s.probe.Allow()
		if err != nil {
			s.markDegraded(ctx, op, ErrStoreUnavailable)
			return ErrStoreUnavailable
		}
	}

	opCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	err := fn(opCtx)
	cancel()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", errCallerDone, ctx.Err())
	}

	if done != nil {
		done(err)
	}
	switch {
	case err == nil:
		s.markRecovered(ctx)
	case errors.Is(err, errCallerDone):
	default:
		s.markDegraded(ctx, op, err)
	}
	return err
}

func (s *FailoverStore) markDegraded(ctx context.Context, op string, err error) {
	s.metrics.recordFallback(ctx, op)
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.Warn(ctx, "shared rate limit store unreachable, using local counters",
			xlog.Component("xlimit"), xlog.Operation(op), xlog.Err(err))
	}
}

func (s *FailoverStore) markRecovered(ctx context.Context) {
	if s.degraded.CompareAndSwap(true, false) {
		s.logger.Info(ctx, "shared rate limit store recovered", xlog.Component("xlimit"))
	}
}
