package xlimit

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/omeyang/xguard/pkg/context/xctx"
	"github.com/omeyang/xguard/pkg/observability/xlog"
)

// KeyFunc 从请求推导限流身份
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc 已认证用户优先（user:<id>），否则使用来源地址（ip:<addr>）
func DefaultKeyFunc(r *http.Request) string {
	if id := xctx.Identity(r.Context()); id != "" {
		return id
	}
	return xctx.IdentityIPPrefix + RemoteIP(r)
}

// RemoteIP 返回 RemoteAddr 中的主机部分
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PolicyFunc 为请求选择策略
type PolicyFunc func(r *http.Request) Policy

// PolicyForRole 按 xctx 中的角色选择策略，未命中时使用 def
func PolicyForRole(def Policy, byRole map[string]Policy) PolicyFunc {
	return func(r *http.Request) Policy {
		if p, ok := byRole[xctx.Role(r.Context())]; ok {
			return p
		}
		return def
	}
}

// DenyHandler 处理被拒绝的请求，响应头已写入
type DenyHandler func(w http.ResponseWriter, r *http.Request, res Result)

// DefaultDenyHandler 返回 429 与 JSON 错误体
func DefaultDenyHandler(w http.ResponseWriter, _ *http.Request, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": res.RetryAfterSeconds(),
	})
}

type middlewareOptions struct {
	keyFunc    KeyFunc
	policyFunc PolicyFunc
	skip       func(r *http.Request) bool
	deny       DenyHandler
	logger     xlog.Logger
}

// MiddlewareOption 中间件选项
type MiddlewareOption func(*middlewareOptions)

// WithKeyFunc 自定义身份推导（例如按 API Key 限流）
func WithKeyFunc(fn KeyFunc) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.keyFunc = fn
		}
	}
}

// WithPolicyFunc 按请求选择策略
func WithPolicyFunc(fn PolicyFunc) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.policyFunc = fn
		}
	}
}

// WithSkip 跳过满足条件的请求（如健康检查）
func WithSkip(fn func(r *http.Request) bool) MiddlewareOption {
	return func(o *middlewareOptions) { o.skip = fn }
}

// WithDenyHandler 自定义拒绝响应
func WithDenyHandler(fn DenyHandler) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.deny = fn
		}
	}
}

// WithMiddlewareLogger 存储失败放行时记录日志
func WithMiddlewareLogger(l xlog.Logger) MiddlewareOption {
	return func(o *middlewareOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// HTTPMiddleware 创建 HTTP 限流中间件
//
// 限流检查本身失败时放行请求（存储已降级仍失败的极端情况）。
//
//	mux.Handle("/api/login", xlimit.HTTPMiddleware(limiter, xlimit.Auth)(loginHandler))
func HTTPMiddleware(l *Limiter, p Policy, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := &middlewareOptions{
		keyFunc:    DefaultKeyFunc,
		policyFunc: func(*http.Request) Policy { return p },
		deny:       DefaultDenyHandler,
		logger:     xlog.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.skip != nil && o.skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), o.keyFunc(r), o.policyFunc(r))
			if err != nil {
				o.logger.Warn(r.Context(), "rate limit check skipped", xlog.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			res.SetHeaders(w)
			if !res.Allowed {
				o.deny(w, r, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
