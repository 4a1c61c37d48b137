// Package xlog 基于 log/slog 的结构化日志。
//
// # 创建 Logger
//
// 使用 Builder 模式（first-error-wins：遇到第一个配置错误后，后续 Set 操作被跳过）：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xguard/xguard.log", xlog.RotateMaxSizeMB(100)).
//		Build()
//	defer cleanup()
//
// # Context 注入
//
// 默认启用 EnrichHandler，从 context 自动提取 request_id、trace_id、span_id、
// user_id、client_ip（见 xctx）。
//
// # 全局 Logger
//
// [Default]、[SetDefault]、[Info] 等适用于命令行工具等简单场景，服务端推荐依赖注入。
//
// # 测试
//
// [Discard] 返回丢弃所有输出的 Logger，供组件默认值和测试使用。
package xlog
