// Package xctx 提供请求级上下文字段的存取。
//
// 字段分两类：
//   - 身份：user_id（已认证用户）、client_ip（网络来源地址）、role（角色）
//   - 追踪：request_id、trace_id、span_id
//
// # 命名约定
//
//	WithXxx(ctx, value) - 注入，ctx 为 nil 时返回 ErrNilContext
//	Xxx(ctx)            - 读取，缺失时返回零值
//
// xctx 只做存取，不校验值的合法性。日志（xlog）通过 [LogAttrs] 提取字段，
// 限流（xlimit）通过 [Identity] 推导限流键。
package xctx
