package xtrace

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/omeyang/xguard/pkg/context/xctx"
)

// HTTP Header
const (
	HeaderRequestID   = "X-Request-ID"
	HeaderTraceparent = "traceparent"
	HeaderUserID      = "X-User-ID"
	HeaderUserRole    = "X-User-Role"
)

// maxRequestIDLen 外部传入的请求 ID 超过该长度时重新生成
const maxRequestIDLen = 128

type config struct {
	trustIdentity bool
	newID         func() string
}

// Option 中间件选项
type Option func(*config)

// WithTrustedIdentity 采信网关注入的身份头，仅在网关之后部署时开启
func WithTrustedIdentity() Option {
	return func(c *config) { c.trustIdentity = true }
}

// WithIDGenerator 自定义请求 ID 生成，默认 UUID
func WithIDGenerator(fn func() string) Option {
	return func(c *config) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// HTTPMiddleware 把请求标识写入 xctx
func HTTPMiddleware(opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{newID: uuid.NewString}
	for _, opt := range opts {
		opt(cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := extract(r.Context(), r.Header, cfg)
			w.Header().Set(HeaderRequestID, xctx.RequestID(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extract 从 Header 提取标识写入 ctx
func extract(ctx context.Context, h http.Header, cfg *config) context.Context {
	set := func(fn func(context.Context, string) (context.Context, error), v string) {
		if v == "" {
			return
		}
		if next, err := fn(ctx, v); err == nil {
			ctx = next
		}
	}

	rid := strings.TrimSpace(h.Get(HeaderRequestID))
	if rid == "" || len(rid) > maxRequestIDLen {
		rid = cfg.newID()
	}
	set(xctx.WithRequestID, rid)

	if traceID, spanID, _, ok := parseTraceparent(strings.TrimSpace(h.Get(HeaderTraceparent))); ok {
		set(xctx.WithTraceID, traceID)
		set(xctx.WithSpanID, spanID)
	}

	if cfg.trustIdentity {
		set(xctx.WithUserID, strings.TrimSpace(h.Get(HeaderUserID)))
		set(xctx.WithRole, strings.TrimSpace(h.Get(HeaderUserRole)))
	}
	return ctx
}

// InjectToRequest 把 ctx 中的请求 ID 与 trace 写到出站请求
func InjectToRequest(ctx context.Context, req *http.Request) {
	if req == nil {
		return
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if rid := xctx.RequestID(ctx); rid != "" {
		req.Header.Set(HeaderRequestID, rid)
	}
	if tp := formatTraceparent(xctx.TraceID(ctx), xctx.SpanID(ctx), "01"); tp != "" {
		req.Header.Set(HeaderTraceparent, tp)
	}
}
