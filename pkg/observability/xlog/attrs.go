package xlog

import (
	"log/slog"
	"time"
)

// 常用属性 key
const (
	KeyError     = "error"
	KeyDuration  = "duration"
	KeyComponent = "component"
	KeyOperation = "operation"
	KeyAttempt   = "attempt"
	KeyName      = "name"
	KeyKey       = "key"
	KeyJobID     = "job_id"
	KeyJobKind   = "job_kind"
	KeyState     = "state"
)

// Err 创建错误属性，err 为 nil 时返回空属性（slog 会忽略）
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性
func Duration(d time.Duration) slog.Attr { return slog.String(KeyDuration, d.String()) }

// Component 创建组件名属性
func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }

// Operation 创建操作名属性
func Operation(name string) slog.Attr { return slog.String(KeyOperation, name) }

// Attempt 创建重试次数属性
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// Name 创建名称属性（断路器名、限流策略名等）
func Name(name string) slog.Attr { return slog.String(KeyName, name) }

// Key 创建键属性
func Key(key string) slog.Attr { return slog.String(KeyKey, key) }

// JobID 创建任务 ID 属性
func JobID(id string) slog.Attr { return slog.String(KeyJobID, id) }

// JobKind 创建任务类型属性
func JobKind(kind string) slog.Attr { return slog.String(KeyJobKind, kind) }

// State 创建状态属性
func State(s string) slog.Attr { return slog.String(KeyState, s) }
