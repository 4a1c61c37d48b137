package xctx

import (
	"context"
	"log/slog"
)

// 身份前缀，区分用户维度与地址维度的限流键。
const (
	IdentityUserPrefix = "user:"
	IdentityIPPrefix   = "ip:"
)

// Identity 返回请求的限流身份。
//
// 优先使用已认证用户（"user:<id>"），否则回退到来源地址（"ip:<addr>"）。
// 两者都缺失时返回空字符串。
func Identity(ctx context.Context) string {
	if uid := UserID(ctx); uid != "" {
		return IdentityUserPrefix + uid
	}
	if ip := ClientIP(ctx); ip != "" {
		return IdentityIPPrefix + ip
	}
	return ""
}

var logFields = [...]struct {
	key  contextKey
	name string
}{
	{keyRequestID, KeyRequestID},
	{keyTraceID, KeyTraceID},
	{keySpanID, KeySpanID},
	{keyUserID, KeyUserID},
	{keyClientIP, KeyClientIP},
}

// AppendLogAttrs 将 context 中非空的字段追加到 attrs。
func AppendLogAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	for _, f := range logFields {
		if v := get(ctx, f.key); v != "" {
			attrs = append(attrs, slog.String(f.name, v))
		}
	}
	return attrs
}

// LogAttrs 提取 context 中所有非空字段，全部缺失时返回 nil。
func LogAttrs(ctx context.Context) []slog.Attr {
	attrs := AppendLogAttrs(make([]slog.Attr, 0, len(logFields)), ctx)
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
