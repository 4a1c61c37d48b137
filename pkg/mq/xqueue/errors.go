package xqueue

import (
	"errors"
	"fmt"
)

var (
	ErrNilContext  = errors.New("xqueue: nil context")
	ErrNilStore    = errors.New("xqueue: nil store")
	ErrNilHandler  = errors.New("xqueue: nil handler")
	ErrNilClient   = errors.New("xqueue: nil redis client")
	ErrEmptyKind   = errors.New("xqueue: empty job kind")
	ErrInvalidJob  = errors.New("xqueue: invalid job")
	ErrInvalidSpec = errors.New("xqueue: invalid schedule")

	ErrInvalidConfig = errors.New("xqueue: invalid config")

	// ErrInvalidPrefix Redis 键前缀缺少 hash tag
	ErrInvalidPrefix = errors.New("xqueue: redis prefix must contain a {hash tag}")

	// ErrUnknownKind 没有为任务类型注册 Handler
	ErrUnknownKind = errors.New("xqueue: no handler registered for kind")

	// ErrDuplicateKind 同一类型重复注册
	ErrDuplicateKind = errors.New("xqueue: handler already registered")

	// ErrJobNotFound 任务不存在（已完成或从未提交）
	ErrJobNotFound = errors.New("xqueue: job not found")

	// ErrNotFailed Replay 的任务不处于 failed-permanently
	ErrNotFailed = errors.New("xqueue: job is not permanently failed")

	// ErrLeaseLost 结算时租约已过期被回收，或任务已被重新投递
	ErrLeaseLost = errors.New("xqueue: job lease lost")

	// ErrWorkerRunning 同一 Worker 重复 Run
	ErrWorkerRunning = errors.New("xqueue: worker already running")
)

// JobError 任务处理失败
type JobError struct {
	ID       string
	Kind     string
	Attempts int
	Err      error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("xqueue: job %s (%s) attempt %d: %v", e.ID, e.Kind, e.Attempts, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }
