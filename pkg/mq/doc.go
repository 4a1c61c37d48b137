// Package mq 提供消息队列相关的子包。
//
// 子包列表：
//   - xqueue: 基于 Redis 的持久化投递队列，至少一次投递、指数退避重试、失败任务保留与重放、cron 定时入队
//
// 设计原则：
//   - 任务幂等键由调用方决定，重复入队不产生新任务
//   - 处理失败按错误分类决定重试或直接失败
//   - 内置可观测性（指标、日志）
package mq
