package xlimit

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xguard/pkg/context/xctx"
)

// GRPCKeyFunc 从 gRPC 请求推导限流身份
type GRPCKeyFunc func(ctx context.Context, info *grpc.UnaryServerInfo) string

// DefaultGRPCKeyFunc 已认证用户优先，否则使用 peer 地址
func DefaultGRPCKeyFunc(ctx context.Context, _ *grpc.UnaryServerInfo) string {
	if id := xctx.Identity(ctx); id != "" {
		return id
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return xctx.IdentityIPPrefix + p.Addr.String()
	}
	return ""
}

// UnaryServerInterceptor 创建 gRPC 一元拦截器
//
// 每个响应通过 header metadata 携带 x-ratelimit-limit/remaining/reset；
// 拒绝时返回 codes.ResourceExhausted 并附带 retry-after。
// 未指定 keyFunc 时使用 DefaultGRPCKeyFunc。
func UnaryServerInterceptor(l *Limiter, p Policy, keyFunc GRPCKeyFunc) grpc.UnaryServerInterceptor {
	if keyFunc == nil {
		keyFunc = DefaultGRPCKeyFunc
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		res, err := l.Allow(ctx, keyFunc(ctx, info), p)
		if err != nil {
			return handler(ctx, req)
		}

		md := metadata.Pairs(
			"x-ratelimit-limit", strconv.FormatInt(res.Limit, 10),
			"x-ratelimit-remaining", strconv.FormatInt(res.Remaining, 10),
			"x-ratelimit-reset", strconv.FormatInt(res.ResetAt.Unix(), 10),
		)
		if !res.Allowed {
			md.Set("retry-after", strconv.FormatInt(res.RetryAfterSeconds(), 10))
		}
		_ = grpc.SetHeader(ctx, md)

		if !res.Allowed {
			return nil, status.Errorf(codes.ResourceExhausted,
				"rate limit exceeded, retry after %ds", res.RetryAfterSeconds())
		}
		return handler(ctx, req)
	}
}
