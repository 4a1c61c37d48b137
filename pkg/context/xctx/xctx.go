package xctx

import (
	"context"
	"errors"
)

type contextKey string

// ErrNilContext 表示传入的 context 为 nil。
var ErrNilContext = errors.New("xctx: nil context")

// 日志字段名
const (
	KeyUserID    = "user_id"
	KeyClientIP  = "client_ip"
	KeyRole      = "role"
	KeyRequestID = "request_id"
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
)

const (
	keyUserID    = contextKey("xctx:user_id")
	keyClientIP  = contextKey("xctx:client_ip")
	keyRole      = contextKey("xctx:role")
	keyRequestID = contextKey("xctx:request_id")
	keyTraceID   = contextKey("xctx:trace_id")
	keySpanID    = contextKey("xctx:span_id")
)

func with(ctx context.Context, key contextKey, value string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, key, value), nil
}

func get(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithUserID 注入已认证用户 ID
func WithUserID(ctx context.Context, userID string) (context.Context, error) {
	return with(ctx, keyUserID, userID)
}

// UserID 读取已认证用户 ID，未认证返回空字符串
func UserID(ctx context.Context) string { return get(ctx, keyUserID) }

// WithClientIP 注入请求来源地址
func WithClientIP(ctx context.Context, ip string) (context.Context, error) {
	return with(ctx, keyClientIP, ip)
}

// ClientIP 读取请求来源地址
func ClientIP(ctx context.Context) string { return get(ctx, keyClientIP) }

// WithRole 注入调用方角色（如 "admin"）
func WithRole(ctx context.Context, role string) (context.Context, error) {
	return with(ctx, keyRole, role)
}

// Role 读取调用方角色
func Role(ctx context.Context) string { return get(ctx, keyRole) }

// WithRequestID 注入请求 ID
func WithRequestID(ctx context.Context, id string) (context.Context, error) {
	return with(ctx, keyRequestID, id)
}

// RequestID 读取请求 ID
func RequestID(ctx context.Context) string { return get(ctx, keyRequestID) }

// WithTraceID 注入 trace ID
func WithTraceID(ctx context.Context, id string) (context.Context, error) {
	return with(ctx, keyTraceID, id)
}

// TraceID 读取 trace ID
func TraceID(ctx context.Context) string { return get(ctx, keyTraceID) }

// WithSpanID 注入 span ID
func WithSpanID(ctx context.Context, id string) (context.Context, error) {
	return with(ctx, keySpanID, id)
}

// SpanID 读取 span ID
func SpanID(ctx context.Context) string { return get(ctx, keySpanID) }
