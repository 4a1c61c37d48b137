// Package xpool 提供泛型 worker pool。
//
// 固定数量的 worker 从有界队列中取任务执行：
//   - Submit 非阻塞，队列满返回 ErrQueueFull，关闭后返回 ErrPoolStopped
//   - Shutdown(ctx) 拒绝新任务并等待队列排空；ctx 到期先返回，Done() 可继续等待
//   - 单个任务 panic 只记录日志（默认仅记录 task 类型），不影响其他任务
//
// xqueue 的 Worker 用它分发出队的任务；Worker 只按空闲槽位出队，所以不会触发 ErrQueueFull。
//
// Close/Shutdown 不可在 handler 内调用，否则会死锁。
package xpool
