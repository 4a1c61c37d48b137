// Package xtrace 在 HTTP 边界上传播请求标识。
//
// HTTPMiddleware 从入站请求提取 X-Request-ID 与 W3C traceparent 写入 xctx，
// 缺失的请求 ID 自动生成，并回写到响应头。网关已认证的身份头
// （X-User-ID、X-User-Role）只有在 WithTrustedIdentity 开启时才会采信，
// 供 xlimit 中间件按用户限流。
//
// InjectToRequest 把 ctx 中的请求 ID 与 traceparent 写到出站请求上，
// 使商户收到的 Webhook 可以与 xguard 日志关联。
package xtrace
