package xpool

import "github.com/omeyang/xguard/pkg/observability/xlog"

// Option Pool 选项
type Option func(*options)

type options struct {
	logger xlog.Logger
	name   string
}

// WithLogger panic 日志输出，默认 xlog.Default()，nil 忽略
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 日志中区分多个 pool
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}
