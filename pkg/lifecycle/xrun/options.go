package xrun

import (
	"os"
	"syscall"

	"github.com/omeyang/xguard/pkg/observability/xlog"
)

// Option Group 选项
type Option func(*options)

type options struct {
	logger   xlog.Logger
	name     string
	signals  []os.Signal
	noSignal bool
}

func defaultOptions() *options {
	return &options{logger: xlog.Discard(), name: "xrun"}
}

// DefaultSignals 默认监听的退出信号，每次返回新切片
func DefaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
}

// WithLogger 设置生命周期日志记录器，默认丢弃
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName 设置 Group 名称，出现在日志的 name 字段
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithSignals 覆盖 Run 监听的信号，空列表使用 DefaultSignals
func WithSignals(signals ...os.Signal) Option {
	copied := append([]os.Signal(nil), signals...)
	return func(o *options) {
		o.signals = copied
	}
}

// WithoutSignalHandler 关闭 Run 的信号监听
func WithoutSignalHandler() Option {
	return func(o *options) {
		o.noSignal = true
	}
}
