// Package delivery 实现 xguard 后台任务的投递端：邮件、Webhook 与库存预警扫描。
//
// 每类外部依赖都经由 xbreaker.Guard 调用（断路器内含重试）。
// 请求路径上的发送在断路器打开时转入 xqueue，由 Worker 稍后重放；
// 作为任务处理时，断路器打开被包装成可重试错误，任务按退避重新排队而不是直接判死。
package delivery

// 任务类型
const (
	KindEmail          = "email"
	KindWebhook        = "webhook"
	KindStockAlertScan = "stock-alert-scan"
)
