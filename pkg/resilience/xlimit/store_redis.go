package xlimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript 固定窗口计数
//
// KEYS[1] 窗口 hash（count, reset）
// ARGV[1] 当前毫秒时间戳，ARGV[2] 窗口毫秒数，ARGV[3] 上限
// 返回 {count, reset, allowed}
var hitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local count = tonumber(redis.call("HGET", KEYS[1], "count"))
local reset = tonumber(redis.call("HGET", KEYS[1], "reset"))

if count == nil or reset == nil or reset <= now then
  reset = now + window
  redis.call("HSET", KEYS[1], "count", 1, "reset", reset)
  redis.call("PEXPIRE", KEYS[1], window)
  return {1, reset, 1}
end

if count >= limit then
  return {count, reset, 0}
end

count = redis.call("HINCRBY", KEYS[1], "count", 1)
return {count, reset, 1}
`)

var _ CounterStore = (*RedisStore)(nil)

// RedisStore 基于 Redis 的共享计数存储
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// RedisOption RedisStore 选项
type RedisOption func(*RedisStore)

// WithRedisClock 注入时钟，窗口时间以该时钟为准
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRedisStore 创建 Redis 计数存储
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	s := &RedisStore{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStore) Type() string { return StoreRedis }

func (s *RedisStore) Hit(ctx context.Context, key string, limit int64, window time.Duration) (Window, bool, error) {
	now := s.now().UnixMilli()
	vals, err := hitScript.Run(ctx, s.client, []string{key}, now, window.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return Window{}, false, err
	}
	if len(vals) != 3 {
		return Window{}, false, errors.New("xlimit: unexpected script result")
	}
	return Window{Count: vals[0], ResetAt: time.UnixMilli(vals[1])}, vals[2] == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Window, bool, error) {
	vals, err := s.client.HMGet(ctx, key, "count", "reset").Result()
	if err != nil {
		return Window{}, false, err
	}
	count, ok1 := parseInt(vals[0])
	reset, ok2 := parseInt(vals[1])
	if !ok1 || !ok2 {
		return Window{}, false, nil
	}
	w := Window{Count: count, ResetAt: time.UnixMilli(reset)}
	if w.Expired(s.now()) {
		return Window{}, false, nil
	}
	return w, true, nil
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key string, w Window) error {
	ttl := w.ResetAt.Sub(s.now())
	if ttl <= 0 {
		return s.client.Del(ctx, key).Err()
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "count", w.Count, "reset", w.ResetAt.UnixMilli())
		p.PExpire(ctx, key, ttl)
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func parseInt(v any) (int64, bool) {
	str, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(str, 10, 64)
	return n, err == nil
}
