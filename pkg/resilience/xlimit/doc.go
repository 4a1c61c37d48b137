// Package xlimit 提供固定窗口限流，计数存储可在共享 Redis 与进程内存之间自动降级。
//
// # 算法
//
// 每个身份在每条策略下有一个窗口 {count, resetAt}：
//   - 窗口不存在或已过期：创建新窗口 count=1、resetAt=now+Window，放行
//   - 窗口有效且 count < MaxRequests：count 加一，放行
//   - 窗口有效且 count >= MaxRequests：拒绝，不写回计数，给出 Retry-After
//
// 被拒绝的请求不会推高计数，也不会刷新窗口；拒绝时 remaining 恒为 0。
// 计数的读-改-写由存储原子完成（Redis 使用 Lua 脚本，本地存储使用互斥锁）。
//
// # 存储
//
//	RedisStore     多实例共享计数
//	LocalStore     进程内计数，基于 golang-lru 限定容量，后台定期清理过期窗口
//	FailoverStore  先访问共享存储，出错时透明切换到本地存储；降级与恢复各记录一次日志
//
// 降级期间限额按进程生效而非全局生效，两份计数不做合并。
//
// # 策略
//
// 预置策略 [General]、[Expensive]、[Auth]、[Admin] 各自独立，限流键按策略名隔离：
//
//	<prefix><policy>:<identity>     例如 ratelimit:auth:ip:10.0.0.1
//
// # 中间件
//
// [HTTPMiddleware] 默认按 xctx 中的用户 ID（user:<id>）限流，缺失时按来源地址（ip:<addr>）。
// 每个响应都带 X-RateLimit-Limit、X-RateLimit-Remaining、X-RateLimit-Reset；
// 拒绝时返回 429 与 Retry-After。[UnaryServerInterceptor] 为 gRPC 提供同样的语义。
package xlimit
