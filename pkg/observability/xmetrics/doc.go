// Package xmetrics 提供统一的观测接口。
//
// 组件通过 [Start] 开启一次观测跨度，结束时调用 Span.End 记录结果。
// [NewOTelObserver] 基于 OpenTelemetry 同时产出 trace span 与两项指标：
//
//	xguard.operation.total     {component, operation, status}
//	xguard.operation.duration  {component, operation, status}，单位秒
//
// observer 为 nil 时 [Start] 返回空跨度，调用方无需判空。
package xmetrics
