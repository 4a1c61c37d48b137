package xbreaker

import (
	"errors"
	"fmt"
)

var (
	// ErrOpen 断路器打开（或半开探测名额用尽），操作未执行
	ErrOpen = errors.New("xbreaker: circuit open")

	// ErrInvalidConfig 配置非法
	ErrInvalidConfig = errors.New("xbreaker: invalid config")

	// ErrUnknownBreaker 注册表中没有该名称的断路器
	ErrUnknownBreaker = errors.New("xbreaker: unknown breaker")

	ErrNilContext = errors.New("xbreaker: nil context")
	ErrNilFunc    = errors.New("xbreaker: nil function")
)

// BreakerError 短路错误
//
// 与依赖自身返回的错误区分开，调用方可据此返回"服务暂时降级"而非"依赖出错"。
// Retryable() 返回 false，xretry 不会重试。
type BreakerError struct {
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	return fmt.Sprintf("xbreaker: circuit %s is %s", e.Name, e.State)
}

// Unwrap 返回 ErrOpen，支持 errors.Is(err, ErrOpen)
func (e *BreakerError) Unwrap() error { return ErrOpen }

func (e *BreakerError) Retryable() bool { return false }

// IsOpen 判断错误是否为短路错误
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}
