// Package xretry 提供带退避的重试执行器。
//
// # 策略
//
// [Policy] 是不可变的值对象：最大尝试次数、初始延迟、退避类型（固定/指数）、
// 延迟上限、抖动与可重试判定。[DefaultPolicy] 为 3 次、100ms、指数退避、5s 上限、无抖动。
//
// 退避公式由 [Policy.Delay] 给出，投递队列（xqueue）复用同一公式计算重投时间。
//
// # 执行
//
//	exec := xretry.New(xretry.DefaultPolicy())
//	err := exec.Do(ctx, func(ctx context.Context) error {
//		return callPaymentGateway(ctx)
//	})
//
//	order, err := xretry.Execute(ctx, exec, func(ctx context.Context) (*Order, error) {
//		return client.GetOrder(ctx, id)
//	})
//
// 行为：
//   - 成功立即返回
//   - IsRetryable 返回 false 时原样返回错误，不再尝试，也不等待
//   - 达到 MaxAttempts 后返回最后一次错误，最后一次尝试之后不会等待
//   - ctx 取消时停止等待
//
// # 错误分类
//
// [DefaultRetryable] 把连接重置/拒绝、超时、5xx 与 429 视为可重试，其余不可重试。
// 实现 [RetryableError] 的错误以其 Retryable() 为准，例如断路器打开错误与限流错误
// 均报告不可重试。
//
// 底层基于 github.com/avast/retry-go/v5。
package xretry
