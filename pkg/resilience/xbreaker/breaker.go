package xbreaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/xguard/pkg/observability/xlog"
)

// Breaker 单个依赖的断路器，并发安全
type Breaker struct {
	name    string
	cfg     Config
	now     func() time.Time
	logger  xlog.Logger
	metrics *Metrics
	notify  func(name string, from, to State)
	success func(error) bool

	mu          sync.Mutex
	state       State
	generation  uint64
	failures    []time.Time
	lastFailure time.Time
	probes      int // 本轮半开已放行的探测数
	inflight    int // 本轮半开尚未返回的探测数
}

// Option 断路器选项
type Option func(*Breaker)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger 设置日志，状态切换时记录一条
func WithLogger(l xlog.Logger) Option {
	return func(b *Breaker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *Metrics) Option {
	return func(b *Breaker) { b.metrics = m }
}

// WithOnStateChange 状态切换回调，在锁外同步执行
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.notify = fn }
}

// WithIsSuccessful 自定义成功判定，返回 true 的错误不计为失败
// （例如参数校验类 4xx 不代表依赖不可用）
func WithIsSuccessful(fn func(err error) bool) Option {
	return func(b *Breaker) {
		if fn != nil {
			b.success = fn
		}
	}
}

// New 创建断路器，配置零值字段取默认值
func New(name string, cfg Config, opts ...Option) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Breaker{
		name:    name,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		logger:  xlog.Discard(),
		success: func(err error) bool { return err == nil },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Name 返回断路器名称
func (b *Breaker) Name() string { return b.name }

// Config 返回断路器配置
func (b *Breaker) Config() Config { return b.cfg }

// State 返回当前状态
//
// 只读：OPEN 冷却期满也不会在此切换为 HALF_OPEN，切换由下一次调用驱动。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do 通过断路器执行操作
//
// 短路时返回 *BreakerError，操作不会执行。
// 操作 panic 时计为失败并继续向上 panic。
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	gen, err := b.before(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.after(ctx, gen, outcomeFailure)
			panic(r)
		}
	}()

	err = fn(ctx)
	b.after(ctx, gen, b.classify(ctx, err))
	return err
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeIgnored
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeFailure:
		return "failure"
	default:
		return "ignored"
	}
}

func (b *Breaker) classify(ctx context.Context, err error) outcome {
	if b.success(err) {
		return outcomeSuccess
	}
	// 调用方放弃不代表依赖不可用
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return outcomeIgnored
	}
	return outcomeFailure
}

type transition struct {
	from, to State
}

// before 判定是否放行，返回本次调用所属的代
func (b *Breaker) before(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	now := b.now()
	var tr *transition

	if b.state == StateOpen && now.Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		tr = b.setState(StateHalfOpen)
	}

	var rejected bool
	switch b.state {
	case StateOpen:
		rejected = true
	case StateHalfOpen:
		switch {
		case b.probes < b.cfg.HalfOpenMaxCalls:
			b.probes++
			b.inflight++
		case b.inflight == 0:
			// 名额用尽且无探测成功
			b.lastFailure = now
			tr = b.merge(tr, b.setState(StateOpen))
			rejected = true
		default:
			rejected = true
		}
	}
	gen, state := b.generation, b.state
	b.mu.Unlock()

	b.fire(ctx, tr)
	if rejected {
		b.metrics.recordCall(ctx, b.name, "rejected")
		return 0, &BreakerError{Name: b.name, State: state}
	}
	return gen, nil
}

// after 记录调用结果，过期代的结果被忽略
func (b *Breaker) after(ctx context.Context, gen uint64, out outcome) {
	b.metrics.recordCall(ctx, b.name, out.String())

	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}
	now := b.now()
	var tr *transition

	switch b.state {
	case StateClosed:
		b.prune(now)
		if out == outcomeFailure {
			b.failures = append(b.failures, now)
			b.lastFailure = now
			if len(b.failures) >= b.cfg.FailureThreshold {
				tr = b.setState(StateOpen)
			}
		}
	case StateHalfOpen:
		b.inflight--
		switch out {
		case outcomeSuccess:
			b.failures = b.failures[:0]
			tr = b.setState(StateClosed)
		case outcomeFailure:
			b.lastFailure = now
			tr = b.setState(StateOpen)
		case outcomeIgnored:
		}
	case StateOpen:
	}
	b.mu.Unlock()

	b.fire(ctx, tr)
}

// prune 剔除窗口外的失败记录，调用方持锁
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.MonitoringWindow)
	i := 0
	for i < len(b.failures) && !b.failures[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.failures = append(b.failures[:0], b.failures[i:]...)
	}
}

// setState 切换状态并推进代，调用方持锁
func (b *Breaker) setState(to State) *transition {
	if b.state == to {
		return nil
	}
	from := b.state
	b.state = to
	b.generation++
	if to == StateHalfOpen || to == StateClosed {
		b.probes, b.inflight = 0, 0
	}
	return &transition{from: from, to: to}
}

// merge 合并同一次判定中的两次切换（OPEN→HALF_OPEN→OPEN）
func (b *Breaker) merge(first, second *transition) *transition {
	if first == nil {
		return second
	}
	if second == nil {
		return first
	}
	return &transition{from: first.from, to: second.to}
}

func (b *Breaker) fire(ctx context.Context, tr *transition) {
	if tr == nil || tr.from == tr.to {
		return
	}
	b.logger.Warn(ctx, "circuit state changed",
		xlog.Name(b.name),
		xlog.State(tr.to.String()),
		slog.String("from", tr.from.String()),
	)
	b.metrics.recordTransition(ctx, b.name, tr.to)
	if b.notify != nil {
		b.notify(b.name, tr.from, tr.to)
	}
}

// Reset 手动恢复为 CLOSED 并清空失败窗口
func (b *Breaker) Reset() {
	b.mu.Lock()
	tr := b.setState(StateClosed)
	b.generation++
	b.failures = b.failures[:0]
	b.lastFailure = time.Time{}
	b.probes, b.inflight = 0, 0
	b.mu.Unlock()

	b.fire(context.Background(), tr)
}

// Snapshot 断路器状态快照
type Snapshot struct {
	Name           string    `json:"name"`
	State          State     `json:"state"`
	Failures       int       `json:"failures"`
	LastFailure    time.Time `json:"last_failure,omitzero"`
	HalfOpenProbes int       `json:"half_open_probes"`
	Config         Config    `json:"config"`
}

// Snapshot 返回当前状态快照，失败数为剔除窗口外记录后的值
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.now())
	return Snapshot{
		Name:           b.name,
		State:          b.state,
		Failures:       len(b.failures),
		LastFailure:    b.lastFailure,
		HalfOpenProbes: b.probes,
		Config:         b.cfg,
	}
}
