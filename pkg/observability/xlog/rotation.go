package xlog

import (
	"errors"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrEmptyFilename 轮转文件名为空
var ErrEmptyFilename = errors.New("xlog: rotation filename is empty")

// RotateOption 日志轮转选项
type RotateOption func(*lumberjack.Logger)

// RotateMaxSizeMB 单个文件最大大小（MB），默认 100
func RotateMaxSizeMB(mb int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxSize = mb }
}

// RotateMaxBackups 保留的旧文件数量
func RotateMaxBackups(n int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxBackups = n }
}

// RotateMaxAgeDays 旧文件保留天数
func RotateMaxAgeDays(days int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxAge = days }
}

// RotateCompress 是否 gzip 压缩旧文件
func RotateCompress(compress bool) RotateOption {
	return func(l *lumberjack.Logger) { l.Compress = compress }
}

// SetRotation 输出到按大小轮转的文件
func (b *Builder) SetRotation(filename string, opts ...RotateOption) *Builder {
	if b.err != nil {
		return b
	}
	if filename == "" {
		b.err = ErrEmptyFilename
		return b
	}
	l := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		LocalTime:  true,
	}
	for _, opt := range opts {
		opt(l)
	}
	b.rotator = l
	b.output = l
	return b
}
