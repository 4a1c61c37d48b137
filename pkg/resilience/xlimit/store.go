package xlimit

import (
	"context"
	"time"
)

// Window 固定窗口状态
type Window struct {
	Count   int64
	ResetAt time.Time
}

// Expired 判断窗口在 now 时刻是否已过期
func (w Window) Expired(now time.Time) bool {
	return !w.ResetAt.After(now)
}

//go:generate mockgen -source=store.go -destination=mock_store_test.go -package=xlimit

// CounterStore 计数存储
//
// 实现必须保证 Hit 对同一 key 原子：并发请求不会同时看到自增前的计数。
// 存储不可达时返回 error，与"key 不存在"（ok=false）区分。
type CounterStore interface {
	// Get 返回未过期的窗口，不存在或已过期时 ok=false
	Get(ctx context.Context, key string) (w Window, ok bool, err error)

	// SetWithTTL 覆盖写入窗口，在 ResetAt 过期
	SetWithTTL(ctx context.Context, key string, w Window) error

	// Hit 按固定窗口算法计数一次
	//
	// 窗口不存在或过期时创建 count=1 的新窗口；count 已达 limit 时拒绝且不写回。
	Hit(ctx context.Context, key string, limit int64, window time.Duration) (w Window, allowed bool, err error)

	// Delete 删除窗口
	Delete(ctx context.Context, key string) error

	// Type 存储类型，用于日志与指标
	Type() string
}

// 存储类型
const (
	StoreRedis    = "redis"
	StoreLocal    = "local"
	StoreFailover = "failover"
)
