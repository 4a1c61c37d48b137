package xqueue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xguard/pkg/observability/xlog"
)

// PayloadFunc 为一次触发生成任务内容
type PayloadFunc func(tick time.Time) any

// Scheduler 按 cron 表达式周期性提交任务（如库存预警扫描）
//
// 每次触发的任务 ID 由名称与触发时间确定，多个副本同时触发时由存储去重；
// 配置 Locker 后未抢到锁的副本直接跳过。
type Scheduler struct {
	q       *Queue
	cron    *cron.Cron
	locker  Locker
	lockTTL time.Duration
	tick    time.Duration
	now     func() time.Time
	logger  xlog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// SchedulerOption Scheduler 选项
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	locker   Locker
	lockTTL  time.Duration
	seconds  bool
	location *time.Location
	now      func() time.Time
}

// WithLocker 多副本部署时的调度锁
func WithLocker(l Locker) SchedulerOption {
	return func(o *schedulerOptions) { o.locker = l }
}

// WithLockTTL 调度锁持有时长，默认 1 分钟
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.lockTTL = d
		}
	}
}

// WithSeconds 启用 6 段（含秒）cron 表达式
func WithSeconds() SchedulerOption {
	return func(o *schedulerOptions) { o.seconds = true }
}

// WithLocation 设置时区，默认 time.Local
func WithLocation(loc *time.Location) SchedulerOption {
	return func(o *schedulerOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithSchedulerClock 注入时钟，用于生成触发时间
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewScheduler 创建调度器
func NewScheduler(q *Queue, opts ...SchedulerOption) (*Scheduler, error) {
	if q == nil {
		return nil, ErrNilStore
	}
	o := schedulerOptions{lockTTL: time.Minute, location: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	tick := time.Minute
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if o.seconds {
		tick = time.Second
		parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	}

	return &Scheduler{
		q:       q,
		cron:    cron.New(cron.WithLocation(o.location), cron.WithParser(parser)),
		locker:  o.locker,
		lockTTL: o.lockTTL,
		tick:    tick,
		now:     o.now,
		logger:  q.logger,
		entries: make(map[string]cron.EntryID),
	}, nil
}

// AddRecurring 注册周期任务
//
// name 在调度器内唯一，参与任务 ID 与锁键的生成。payload 为 nil 时任务内容为空。
func (s *Scheduler) AddRecurring(name, spec, kind string, payload PayloadFunc, opts ...EnqueueOption) error {
	if name == "" || kind == "" {
		return fmt.Errorf("%w: name and kind are required", ErrInvalidSpec)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: duplicate name %s", ErrInvalidSpec, name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.Fire(context.Background(), name, kind, payload, opts...)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSpec, spec, err)
	}
	s.entries[name] = id
	return nil
}

// Remove 移除周期任务
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Fire 立即触发一次，返回提交的任务 ID；未抢到锁时返回空字符串
func (s *Scheduler) Fire(ctx context.Context, name, kind string, payload PayloadFunc, opts ...EnqueueOption) string {
	tick := s.now().Truncate(s.tick)
	stamp := strconv.FormatInt(tick.Unix(), 10)
	log := s.logger.With(xlog.Component("xqueue.scheduler"), xlog.Name(name))

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, "schedule:"+name+":"+stamp, s.lockTTL)
		switch {
		case err != nil:
			// 锁服务不可用时继续提交，重复由任务 ID 去重
			log.Warn(ctx, "schedule lock unavailable", xlog.Err(err))
		case !ok:
			log.Debug(ctx, "schedule tick owned by another instance")
			return ""
		}
	}

	var body any
	if payload != nil {
		body = payload(tick)
	}
	opts = append(opts[:len(opts):len(opts)], WithDeterministicID(name, stamp))
	id, err := s.q.Enqueue(ctx, kind, body, opts...)
	if err != nil {
		log.Error(ctx, "scheduled enqueue failed", xlog.Err(err))
		return ""
	}
	return id
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度，返回的 context 在正在执行的触发完成后结束
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Entries 已注册任务的下次触发时间
func (s *Scheduler) Entries() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}
