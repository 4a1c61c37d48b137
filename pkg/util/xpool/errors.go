package xpool

import "errors"

var (
	ErrNilHandler       = errors.New("xpool: nil handler")
	ErrInvalidWorkers   = errors.New("xpool: invalid worker count")
	ErrInvalidQueueSize = errors.New("xpool: invalid queue size")

	// ErrQueueFull Submit 时队列已满
	ErrQueueFull = errors.New("xpool: queue full")
	// ErrPoolStopped 已调用 Close/Shutdown
	ErrPoolStopped = errors.New("xpool: stopped")
	ErrNilContext  = errors.New("xpool: nil context")
)
