package xqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/omeyang/xguard/pkg/observability/xlog"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
	"github.com/omeyang/xguard/pkg/util/xpool"
)

// Worker 从存储出队并分发到 Handler
//
// 轮询间隔内收到本进程的提交通知会提前出队。出队数量不超过空闲槽位，
// 任务在 xpool.Pool 中并发执行。
type Worker struct {
	q   *Queue
	cfg Config

	running  atomic.Bool
	inflight atomic.Int64
	// freed 容量 1，任务结束后唤醒出队循环
	freed chan struct{}
}

// NewWorker 创建 Worker，cfg.Retry 不使用
func NewWorker(q *Queue, cfg Config) (*Worker, error) {
	if q == nil {
		return nil, ErrNilStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Worker{q: q, cfg: cfg, freed: make(chan struct{}, 1)}, nil
}

// Run 运行出队循环直到 ctx 结束
//
// ctx 结束后不再出队，等待已分发的任务执行完毕再返回。
// 正在执行的 Handler 不随 ctx 取消，只受 HandlerTimeout 约束。
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if !w.running.CompareAndSwap(false, true) {
		return ErrWorkerRunning
	}
	defer w.running.Store(false)

	base := context.WithoutCancel(ctx)
	pool, err := xpool.New(w.cfg.Concurrency, w.cfg.Concurrency,
		func(j *Job) { w.process(base, j) },
		xpool.WithLogger(w.q.logger), xpool.WithName("xqueue"))
	if err != nil {
		return err
	}

	w.q.logger.Info(ctx, "queue worker started",
		xlog.Component("xqueue"), slog.Int("concurrency", w.cfg.Concurrency))

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		w.poll(ctx, pool)
		select {
		case <-ctx.Done():
			err := pool.Close()
			w.q.logger.Info(base, "queue worker stopped", xlog.Component("xqueue"))
			return err
		case <-ticker.C:
		case <-w.q.notify:
		case <-w.freed:
		}
	}
}

// Inflight 正在执行的任务数
func (w *Worker) Inflight() int {
	return int(w.inflight.Load())
}

func (w *Worker) poll(ctx context.Context, pool *xpool.Pool[*Job]) {
	if ctx.Err() != nil {
		return
	}
	now := w.q.now()
	if n, err := w.q.store.Reclaim(ctx, now); err != nil {
		w.q.logger.Warn(ctx, "reclaim expired leases failed", xlog.Component("xqueue"), xlog.Err(err))
	} else if n > 0 {
		w.q.logger.Warn(ctx, "reclaimed jobs with expired leases",
			xlog.Component("xqueue"), slog.Int("count", n))
	}

	free := w.cfg.Concurrency - int(w.inflight.Load())
	if free <= 0 {
		return
	}
	jobs, err := w.q.store.Dequeue(ctx, now, free, w.cfg.Lease)
	if err != nil {
		w.q.logger.Warn(ctx, "dequeue failed", xlog.Component("xqueue"), xlog.Err(err))
	}
	for _, j := range jobs {
		w.inflight.Add(1)
		if err := pool.Submit(j); err != nil {
			// 租约到期后由 Reclaim 放回
			w.inflight.Add(-1)
			w.q.logger.Error(ctx, "dispatch job failed", xlog.JobID(j.ID), xlog.Err(err))
		}
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	defer func() {
		w.inflight.Add(-1)
		select {
		case w.freed <- struct{}{}:
		default:
		}
	}()

	start := time.Now()
	err := w.invoke(ctx, job)
	w.settle(ctx, job, err, time.Since(start))
}

// invoke 执行 Handler，panic 视为可重试的失败
func (w *Worker) invoke(ctx context.Context, job *Job) (err error) {
	h, ok := w.q.handler(job.Kind)
	if !ok {
		return xretry.NewPermanentError(fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind))
	}
	if w.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("xqueue: handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

func (w *Worker) settle(ctx context.Context, job *Job, err error, d time.Duration) {
	log := w.q.logger.With(xlog.Component("xqueue"), xlog.JobID(job.ID), xlog.JobKind(job.Kind))

	if err == nil {
		if ackErr := w.q.store.Ack(ctx, job); ackErr != nil {
			logSettleError(ctx, log, "ack job failed", ackErr)
			return
		}
		w.q.metrics.recordProcessed(ctx, job.Kind, OutcomeCompleted, d)
		log.Debug(ctx, "job completed", xlog.Attempt(job.Attempts), xlog.Duration(d))
		return
	}

	now := w.q.now()
	job.LastError = err.Error()
	job.UpdatedAt = now

	if xretry.IsPermanent(err) || job.Exhausted() {
		job.Status = StatusFailed
		if failErr := w.q.store.Fail(ctx, job); failErr != nil {
			logSettleError(ctx, log, "mark job failed", failErr)
			return
		}
		w.q.metrics.recordProcessed(ctx, job.Kind, OutcomeFailed, d)
		log.Error(ctx, "job failed permanently",
			xlog.Attempt(job.Attempts), slog.Int("max_attempts", job.MaxAttempts), xlog.Err(err))
		return
	}

	delay := job.NextDelay()
	job.Status = StatusPending
	if retryErr := w.q.store.Retry(ctx, job, now.Add(delay)); retryErr != nil {
		logSettleError(ctx, log, "reschedule job failed", retryErr)
		return
	}
	w.q.metrics.recordProcessed(ctx, job.Kind, OutcomeRetried, d)
	log.Warn(ctx, "job failed, retrying",
		xlog.Attempt(job.Attempts), slog.Duration("delay", delay), xlog.Err(err))
}

// logSettleError 租约已丢失时任务归新的持有者处理，本次结果丢弃
func logSettleError(ctx context.Context, log xlog.Logger, msg string, err error) {
	if errors.Is(err, ErrLeaseLost) {
		log.Warn(ctx, "job lease lost, result dropped", xlog.Err(err))
		return
	}
	log.Error(ctx, msg, xlog.Err(err))
}
