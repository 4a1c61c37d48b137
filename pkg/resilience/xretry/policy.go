package xretry

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Backoff 退避类型
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// Policy 重试策略（值对象）
type Policy struct {
	// MaxAttempts 总尝试次数（包含首次），必须 >= 1
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" koanf:"max_attempts"`

	// InitialDelay 首次重试前的等待时间
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay" koanf:"initial_delay"`

	// Backoff 退避类型，空值视为指数退避
	Backoff Backoff `json:"backoff" yaml:"backoff" koanf:"backoff"`

	// MaxDelay 单次等待上限，0 表示不设上限
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" koanf:"max_delay"`

	// Jitter 在计算出的延迟上叠加 [0, Jitter) 的均匀随机量，0 表示无抖动
	Jitter time.Duration `json:"jitter" yaml:"jitter" koanf:"jitter"`

	// IsRetryable 可重试判定，nil 使用 DefaultRetryable
	IsRetryable func(error) bool `json:"-" yaml:"-" koanf:"-"`
}

// DefaultPolicy 3 次尝试、100ms 起步、指数退避、5s 上限、无抖动
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Backoff:      BackoffExponential,
		MaxDelay:     5 * time.Second,
	}
}

// Validate 校验策略参数
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be >= 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 || p.Jitter < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidPolicy)
	}
	switch p.Backoff {
	case "", BackoffFixed, BackoffExponential:
	default:
		return fmt.Errorf("%w: unknown backoff %q", ErrInvalidPolicy, p.Backoff)
	}
	return nil
}

// WithJitter 返回带抖动的策略副本
func (p Policy) WithJitter(d time.Duration) Policy {
	p.Jitter = d
	return p
}

// Retryable 使用策略的判定函数判断 err
func (p Policy) Retryable(err error) bool {
	if p.IsRetryable != nil {
		return err != nil && p.IsRetryable(err)
	}
	return DefaultRetryable(err)
}

// Delay 返回第 attempt 次失败（1-based）之后的基础等待时间，不含抖动。
//
// 固定退避恒为 InitialDelay；指数退避为 InitialDelay * 2^(attempt-1)，受 MaxDelay 限制。
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialDelay
	if p.Backoff != BackoffFixed {
		for i := 1; i < attempt; i++ {
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				break
			}
			// 溢出保护
			if d > time.Duration(1<<62) {
				break
			}
			d *= 2
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// JitteredDelay 在 Delay 基础上叠加抖动
func (p Policy) JitteredDelay(attempt int) time.Duration {
	d := p.Delay(attempt)
	if p.Jitter > 0 {
		d += rand.N(p.Jitter)
	}
	return d
}
