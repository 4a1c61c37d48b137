package xqueue

import (
	"fmt"
	"time"

	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

// Config 队列与 Worker 配置
type Config struct {
	// Retry 任务默认的尝试次数与退避，可被 EnqueueOption 覆盖
	Retry xretry.Policy `json:"retry" yaml:"retry" koanf:"retry"`

	// Concurrency 同时处理的任务数
	Concurrency int `json:"concurrency" yaml:"concurrency" koanf:"concurrency"`

	// PollInterval 无通知时的轮询间隔
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" koanf:"poll_interval"`

	// Lease 出队租约，必须大于 HandlerTimeout
	Lease time.Duration `json:"lease" yaml:"lease" koanf:"lease"`

	// HandlerTimeout 单次 Handler 执行超时，0 表示不限制
	HandlerTimeout time.Duration `json:"handler_timeout" yaml:"handler_timeout" koanf:"handler_timeout"`

	// RedisPrefix RedisStore 键前缀
	RedisPrefix string `json:"redis_prefix" yaml:"redis_prefix" koanf:"redis_prefix"`
}

// DefaultConfig 5 次尝试、1s 起步指数退避（上限 5m）、并发 4、1s 轮询、5m 租约、1m 超时
func DefaultConfig() Config {
	return Config{
		Retry: xretry.Policy{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			Backoff:      xretry.BackoffExponential,
			MaxDelay:     5 * time.Minute,
		},
		Concurrency:    4,
		PollInterval:   time.Second,
		Lease:          5 * time.Minute,
		HandlerTimeout: time.Minute,
		RedisPrefix:    DefaultRedisPrefix,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be > 0", ErrInvalidConfig)
	}
	if c.HandlerTimeout < 0 {
		return fmt.Errorf("%w: handler_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Lease <= c.HandlerTimeout {
		return fmt.Errorf("%w: lease must exceed handler_timeout", ErrInvalidConfig)
	}
	return nil
}
