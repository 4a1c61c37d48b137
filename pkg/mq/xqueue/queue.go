package xqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/omeyang/xguard/pkg/observability/xlog"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

// Handler 处理一种类型的任务
//
// 返回 nil 表示完成；返回 xretry.PermanentError 表示不再重试；其他错误按退避重试。
// 同一任务可能被执行多次，Handler 必须幂等。
type Handler func(ctx context.Context, job *Job) error

var _ xbreaker.Enqueuer = (*Queue)(nil)

// Queue 任务队列的提交端与 Handler 注册表
type Queue struct {
	store   JobStore
	retry   xretry.Policy
	now     func() time.Time
	logger  xlog.Logger
	metrics *Metrics

	mu       sync.RWMutex
	handlers map[string]Handler

	// notify 容量 1，提交后唤醒本进程的 Worker
	notify chan struct{}
}

// Option Queue 选项
type Option func(*Queue)

// WithRetryPolicy 设置任务默认重试参数（IsRetryable/Jitter 不使用）
func WithRetryPolicy(p xretry.Policy) Option {
	return func(q *Queue) { q.retry = p }
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithLogger 设置日志
func WithLogger(l xlog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// NewQueue 创建队列
func NewQueue(store JobStore, opts ...Option) (*Queue, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	q := &Queue{
		store:    store,
		retry:    DefaultConfig().Retry,
		now:      time.Now,
		logger:   xlog.Discard(),
		handlers: make(map[string]Handler),
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	if err := q.retry.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Register 注册 kind 的 Handler
func (q *Queue) Register(kind string, h Handler) error {
	if kind == "" {
		return ErrEmptyKind
	}
	if h == nil {
		return ErrNilHandler
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.handlers[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}
	q.handlers[kind] = h
	return nil
}

func (q *Queue) handler(kind string) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[kind]
	return h, ok
}

// Kinds 已注册的任务类型
func (q *Queue) Kinds() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	kinds := make([]string, 0, len(q.handlers))
	for k := range q.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Store 返回底层存储
func (q *Queue) Store() JobStore { return q.store }

// EnqueueOption 提交选项
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	id      string
	idParts []string
	retry   xretry.Policy
	delay   time.Duration
}

// WithJobID 指定任务 ID
func WithJobID(id string) EnqueueOption {
	return func(o *enqueueOptions) { o.id = id }
}

// WithDeterministicID 由 kind 与 parts 生成稳定 ID，见 DeterministicID
func WithDeterministicID(parts ...string) EnqueueOption {
	return func(o *enqueueOptions) { o.idParts = parts }
}

// WithMaxAttempts 覆盖最大尝试次数
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) { o.retry.MaxAttempts = n }
}

// WithBackoff 覆盖退避参数
func WithBackoff(b xretry.Backoff, initial, maxDelay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		o.retry.Backoff = b
		o.retry.InitialDelay = initial
		o.retry.MaxDelay = maxDelay
	}
}

// WithDelay 延迟首次投递
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.delay = d }
}

// Enqueue 提交任务并返回任务 ID
//
// payload 为 json.RawMessage 或 []byte 时须为合法 JSON，原样保存，其余类型按 JSON 编码。
// ID 已存在时不重复提交，返回已有 ID 且 err 为 nil。
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any, opts ...EnqueueOption) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	if kind == "" {
		return "", ErrEmptyKind
	}
	o := enqueueOptions{retry: q.retry}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.retry.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	if o.delay < 0 {
		return "", fmt.Errorf("%w: negative delay", ErrInvalidJob)
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	id := o.id
	switch {
	case id != "":
	case len(o.idParts) > 0:
		id = DeterministicID(kind, o.idParts...)
	default:
		id = NewID()
	}

	now := q.now()
	job := &Job{
		ID:           id,
		Kind:         kind,
		Payload:      raw,
		MaxAttempts:  o.retry.MaxAttempts,
		Backoff:      o.retry.Backoff,
		InitialDelay: o.retry.InitialDelay,
		MaxDelay:     o.retry.MaxDelay,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		RunAt:        now.Add(o.delay),
	}
	created, err := q.store.Enqueue(ctx, job)
	if err != nil {
		return "", fmt.Errorf("xqueue: enqueue %s: %w", kind, err)
	}
	if !created {
		q.logger.Debug(ctx, "duplicate job ignored", xlog.JobID(id), xlog.JobKind(kind))
		return id, nil
	}
	q.metrics.recordEnqueue(ctx, kind)
	q.wake()
	return id, nil
}

// EnqueueJob 以默认选项提交任务，满足 xbreaker.Enqueuer
func (q *Queue) EnqueueJob(ctx context.Context, kind string, payload any) error {
	_, err := q.Enqueue(ctx, kind, payload)
	return err
}

// Get 查询任务
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.store.Get(ctx, id)
}

// ListFailed 列出永久失败的任务
func (q *Queue) ListFailed(ctx context.Context, limit int) ([]*Job, error) {
	return q.store.ListFailed(ctx, limit)
}

// Replay 重新投递永久失败的任务，尝试次数清零
func (q *Queue) Replay(ctx context.Context, id string) (*Job, error) {
	job, err := q.store.Replay(ctx, id, q.now())
	if err != nil {
		return nil, err
	}
	q.logger.Info(ctx, "job replayed", xlog.JobID(id), xlog.JobKind(job.Kind))
	q.wake()
	return job, nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return validRaw(p)
	case []byte:
		return validRaw(p)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %w", ErrInvalidJob, err)
	}
	return raw, nil
}

func validRaw(p []byte) (json.RawMessage, error) {
	if !json.Valid(p) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidJob)
	}
	return json.RawMessage(p), nil
}
