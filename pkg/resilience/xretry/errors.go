package xretry

import "errors"

var (
	// ErrNilContext ctx 为 nil
	ErrNilContext = errors.New("xretry: nil context")
	// ErrNilFunc 操作函数为 nil
	ErrNilFunc = errors.New("xretry: nil function")
	// ErrInvalidPolicy 策略参数非法
	ErrInvalidPolicy = errors.New("xretry: invalid policy")
)

// RetryableError 可重试错误接口
//
// 实现此接口的错误由 Retryable() 决定是否重试，优先于默认判定。
type RetryableError interface {
	error
	Retryable() bool
}

// StatusCoder 携带 HTTP 风格状态码的错误
type StatusCoder interface {
	StatusCode() int
}

// PermanentError 永久性错误（不应重试）
type PermanentError struct {
	Err error
}

// NewPermanentError 创建永久性错误
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

func (e *PermanentError) Retryable() bool { return false }

// TemporaryError 临时性错误（应该重试）
type TemporaryError struct {
	Err error
}

// NewTemporaryError 创建临时性错误
func NewTemporaryError(err error) *TemporaryError {
	return &TemporaryError{Err: err}
}

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "temporary error"
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error { return e.Err }

func (e *TemporaryError) Retryable() bool { return true }

// IsPermanent 检查错误是否被显式标记为不可重试
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return !re.Retryable()
	}
	return false
}
