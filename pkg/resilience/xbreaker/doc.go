// Package xbreaker 为不可靠的外部依赖提供断路器。
//
// # 状态机
//
// 每个逻辑依赖（邮件中继、支付网关、物流接口、Webhook 等）对应一个 [Breaker]：
//
//	CLOSED    调用直接放行。失败时记入滑动窗口（先剔除超过 MonitoringWindow 的记录），
//	          窗口内失败数达到 FailureThreshold 时转为 OPEN。
//	OPEN      调用被短路，不执行操作：有降级则走降级，否则返回 [ErrOpen]。
//	          距最近一次失败满 ResetTimeout 后，下一次调用把状态切到 HALF_OPEN 并作为探测执行。
//	HALF_OPEN 最多放行 HalfOpenMaxCalls 个探测。任一探测成功转为 CLOSED 并清空窗口；
//	          任一探测失败转回 OPEN 并刷新最近失败时间；名额用尽的调用按 OPEN 处理。
//
// 状态判定在互斥锁内完成，并发调用看到一致的状态视图，至多放行 HalfOpenMaxCalls 个探测。
//
// 调用方主动取消（context.Canceled）不计为依赖失败；超时（context.DeadlineExceeded）计为失败。
// 断路器本身不设超时，调用方应为操作设置有界的 deadline。
//
// # 降级
//
// [Fallback] 是带标签的变体：[NoFallback]、[StaticValue]、[Enqueue]、[FuncFallback]。
// [Enqueue] 把操作写入投递队列（xqueue 实现了 [Enqueuer]），由后台在依赖恢复后重投。
//
// # 注册表
//
// [Registry] 在启动时构建并注入调用方，按名称惰性创建断路器，支持手动重置与快照导出。
//
// # 重试
//
// [Guard] 在断路器内部执行 xretry 重试：一次逻辑调用只向断路器报告最终结果，
// 断路器打开错误实现 Retryable() == false，不会被重试。
package xbreaker
