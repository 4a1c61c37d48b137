package xlimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLimited 请求被限流
	ErrLimited = errors.New("xlimit: rate limit exceeded")

	// ErrInvalidPolicy 策略非法
	ErrInvalidPolicy = errors.New("xlimit: invalid policy")

	// ErrEmptyIdentity 无法确定限流身份
	ErrEmptyIdentity = errors.New("xlimit: empty identity")

	// ErrStoreUnavailable 共享存储被探测断路器跳过
	ErrStoreUnavailable = errors.New("xlimit: shared store unavailable")

	ErrNilClient = errors.New("xlimit: nil redis client")
	ErrNilStore  = errors.New("xlimit: nil store")
)

// LimitError 限流拒绝错误
//
// Retryable() 返回 false：是否重试由外部调用方依据 RetryAfter 决定。
type LimitError struct {
	Policy     string
	Key        string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("xlimit: rate limit exceeded for %s, retry after %s", e.Policy, e.RetryAfter)
}

func (e *LimitError) Unwrap() error { return ErrLimited }

func (e *LimitError) Retryable() bool { return false }

// IsDenied 判断错误是否为限流拒绝
func IsDenied(err error) bool {
	return errors.Is(err, ErrLimited)
}
