package xqueue

import (
	"context"
	"time"
)

// JobStore 任务存储
//
// 所有方法必须并发安全；多进程共享的实现必须保证 Dequeue 对同一任务只交给一个调用方。
type JobStore interface {
	// Enqueue 保存待处理任务，ID 已存在时不做任何修改并返回 created=false
	Enqueue(ctx context.Context, job *Job) (created bool, err error)

	// Dequeue 取出最多 limit 个 RunAt <= now 的待处理任务，标记为 in-flight，租约到 now+lease。
	// 每次出队在存储内原子地 Attempts+1，投递未能结算（进程崩溃、租约过期）也计入尝试次数。
	Dequeue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*Job, error)

	// Ack 任务完成，从存储中删除
	//
	// Ack、Retry、Fail 只接受 Dequeue 返回的任务：租约已被回收或重新投递时返回 ErrLeaseLost。
	Ack(ctx context.Context, job *Job) error

	// Retry 更新任务（LastError）并在 runAt 重新可见
	Retry(ctx context.Context, job *Job, runAt time.Time) error

	// Fail 标记为 failed-permanently 并保留
	Fail(ctx context.Context, job *Job) error

	// Get 查询任务，不存在返回 ErrJobNotFound
	Get(ctx context.Context, id string) (*Job, error)

	// ListFailed 按失败时间倒序列出最多 limit 个失败任务，limit <= 0 表示全部
	ListFailed(ctx context.Context, limit int) ([]*Job, error)

	// Replay 将失败任务重置为待处理（Attempts 清零），立即可见
	Replay(ctx context.Context, id string, now time.Time) (*Job, error)

	// Reclaim 处理租约已过期的 in-flight 任务：尝试次数已用完的标记为 failed-permanently，
	// 其余放回待处理。返回处理的数量
	Reclaim(ctx context.Context, now time.Time) (int, error)
}

// leaseExpired 租约过期且尝试次数已用完的任务的 LastError
const leaseExpired = "xqueue: lease expired before the job was settled"
