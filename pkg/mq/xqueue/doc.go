// Package xqueue 提供至少一次投递的后台任务队列。
//
// 调用方通过 Queue.Enqueue 提交任务后立即返回；Worker 从 JobStore 出队，
// 按任务类型（kind）调用注册的 Handler：
//   - 成功：任务完成并从存储中删除
//   - 失败：Attempts 未达上限时按指数（或固定）退避重新排队
//   - 达到上限或 Handler 返回 xretry.PermanentError：标记为 failed-permanently 并保留，
//     可通过 ListFailed 查看、Replay 重新投递
//
// 出队时任务带租约，Attempts 在出队时由存储加一。进程在处理中途退出时，
// 租约到期后 Reclaim 将其放回待处理（尝试次数已用完则标记为 failed-permanently），
// 因此 Handler 必须可以安全地重复执行。租约被回收后，原持有者的结算返回 ErrLeaseLost。
// 队列不保证同类任务的处理顺序。
//
// 任务 ID 可以确定性生成（WithDeterministicID），相同 ID 的重复提交会被忽略，
// 用于降低重复投递的概率。
//
// Queue 实现了 xbreaker.Enqueuer，可以作为断路器的 Enqueue 降级目标。
//
// 存储实现：
//   - MemoryStore：进程内，用于测试与单实例部署
//   - RedisStore：Redis 有序集合实现延迟可见，多实例共享
package xqueue
