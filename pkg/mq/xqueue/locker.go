package xqueue

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker 调度去重锁，多副本中只有一个实例在同一时刻触发任务
type Locker interface {
	// TryLock 非阻塞获取锁，锁由 ttl 自然过期，不主动释放。
	// 被其他实例持有时返回 (false, nil)。
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var _ Locker = (*RedisLocker)(nil)

// RedisLocker 基于 redsync 的 Locker，多个客户端时使用 Redlock
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
}

// NewRedisLocker 创建 Redis 锁
func NewRedisLocker(clients ...redis.UniversalClient) (*RedisLocker, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, c := range clients {
		if c == nil {
			return nil, ErrNilClient
		}
		pools[i] = goredis.NewPool(c)
	}
	return &RedisLocker{rs: redsync.New(pools...), prefix: "xqueue:lock:"}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m := l.rs.NewMutex(l.prefix+key, redsync.WithExpiry(ttl), redsync.WithTries(1))
	err := m.TryLockContext(ctx)
	if err == nil {
		return true, nil
	}
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return false, nil
	}
	return false, err
}
