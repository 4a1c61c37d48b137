package xbreaker

import (
	"fmt"
	"time"
)

// Config 断路器配置，构造后不可变
type Config struct {
	// FailureThreshold 窗口内失败数达到该值时打开
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" koanf:"failure_threshold"`

	// ResetTimeout 打开后距最近一次失败多久允许探测
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout" koanf:"reset_timeout"`

	// MonitoringWindow 失败计数的滑动窗口
	MonitoringWindow time.Duration `json:"monitoring_window" yaml:"monitoring_window" koanf:"monitoring_window"`

	// HalfOpenMaxCalls 半开状态下的探测名额
	HalfOpenMaxCalls int `json:"half_open_max_calls" yaml:"half_open_max_calls" koanf:"half_open_max_calls"`
}

// DefaultConfig 5 次失败 / 60s 窗口 / 60s 冷却 / 1 个探测
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		MonitoringWindow: 60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// withDefaults 零值字段取默认值
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.MonitoringWindow == 0 {
		c.MonitoringWindow = d.MonitoringWindow
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	return c
}

// Validate 校验配置（零值字段视为使用默认值）
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure_threshold must be >= 1", ErrInvalidConfig)
	}
	if c.HalfOpenMaxCalls < 1 {
		return fmt.Errorf("%w: half_open_max_calls must be >= 1", ErrInvalidConfig)
	}
	if c.ResetTimeout < 0 || c.MonitoringWindow < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return nil
}
