package xqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix 键前缀，花括号使所有键落在同一 cluster slot
const DefaultRedisPrefix = "{xqueue}:"

// 键布局：
//
//	<prefix>job:<id>  hash   data=任务 JSON, status=状态, attempts=已出队次数,
//	                         max=最大尝试次数, lease=租约到期毫秒, error=最近错误
//	<prefix>ready     zset   待处理任务，score 为 RunAt 毫秒
//	<prefix>inflight  zset   处理中任务，score 为租约到期毫秒
//	<prefix>failed    zset   永久失败任务，score 为失败时间毫秒
//
// attempts、status、lease、error 以 hash 字段为准，data 中的同名字段只在入队与结算时写入。
//
// dequeueScript 与 reclaimScript 从 zset 读出 id 后按 ARGV 中的前缀拼出任务键，
// 这些键无法预先放进 KEYS；前缀必须带 hash tag（见 NewRedisStore 校验），
// 保证它们与 KEYS 落在同一 slot。
var (
	// KEYS: job, ready; ARGV: data, runAt, id, attempts, max
	enqueueScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "data", ARGV[1], "status", "pending", "attempts", ARGV[4], "max", ARGV[5])
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
return 1
`)

	// KEYS: ready, inflight; ARGV: now, limit, leaseUntil, jobPrefix
	// 返回 {id, data, attempts, ...}
	dequeueScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
local out = {}
for _, id in ipairs(ids) do
  redis.call("ZREM", KEYS[1], id)
  local key = ARGV[4] .. id
  local data = redis.call("HGET", key, "data")
  if data then
    local attempts = redis.call("HINCRBY", key, "attempts", 1)
    redis.call("HSET", key, "status", "in-flight", "lease", ARGV[3])
    redis.call("ZADD", KEYS[2], ARGV[3], id)
    table.insert(out, id)
    table.insert(out, data)
    table.insert(out, attempts)
  end
end
return out
`)

	// KEYS: job, inflight, ready; ARGV: id, lease
	ackScript = redis.NewScript(`
local cur = redis.call("HMGET", KEYS[1], "status", "lease")
if not cur[1] then
  return -1
end
if cur[1] ~= "in-flight" or cur[2] ~= ARGV[2] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("ZREM", KEYS[3], ARGV[1])
return 1
`)

	// KEYS: job, inflight, ready, target; ARGV: data, score, id, status, lease, error
	moveScript = redis.NewScript(`
local cur = redis.call("HMGET", KEYS[1], "status", "lease")
if not cur[1] then
  return -1
end
if cur[1] ~= "in-flight" or cur[2] ~= ARGV[5] then
  return 0
end
redis.call("HSET", KEYS[1], "data", ARGV[1], "status", ARGV[4], "error", ARGV[6])
redis.call("HDEL", KEYS[1], "lease")
redis.call("ZREM", KEYS[2], ARGV[3])
redis.call("ZREM", KEYS[3], ARGV[3])
redis.call("ZADD", KEYS[4], ARGV[2], ARGV[3])
return 1
`)

	// KEYS: job, inflight, failed; ARGV: id, score, error
	parkScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "status", "failed-permanently", "error", ARGV[3])
redis.call("HDEL", KEYS[1], "lease")
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("ZADD", KEYS[3], ARGV[2], ARGV[1])
return 1
`)

	// KEYS: job, failed, ready; ARGV: data, now, id
	replayScript = redis.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
if not status then
  return -1
end
if status ~= "failed-permanently" then
  return 0
end
redis.call("HSET", KEYS[1], "data", ARGV[1], "status", "pending", "attempts", "0")
redis.call("ZREM", KEYS[2], ARGV[3])
redis.call("ZADD", KEYS[3], ARGV[2], ARGV[3])
return 1
`)

	// KEYS: inflight, ready, failed; ARGV: now, jobPrefix, error
	reclaimScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local n = 0
for _, id in ipairs(ids) do
  redis.call("ZREM", KEYS[1], id)
  local key = ARGV[2] .. id
  if redis.call("EXISTS", key) == 1 then
    local cur = redis.call("HMGET", key, "attempts", "max")
    redis.call("HDEL", key, "lease")
    if (tonumber(cur[1]) or 0) >= (tonumber(cur[2]) or 0) then
      redis.call("HSET", key, "status", "failed-permanently", "error", ARGV[3])
      redis.call("ZADD", KEYS[3], ARGV[1], id)
    else
      redis.call("HSET", key, "status", "pending")
      redis.call("ZADD", KEYS[2], ARGV[1], id)
    end
    n = n + 1
  end
end
return n
`)
)

// jobFields Get/ListFailed 读取的 hash 字段，顺序与 jobFromHash 对应
var jobFields = []string{"data", "status", "attempts", "error", "lease"}

var _ JobStore = (*RedisStore)(nil)

// RedisStore 基于 Redis 的任务存储
//
// 每个状态变化由一个 Lua 脚本完成，多个 Worker 进程可以安全地共享同一组键。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption RedisStore 选项
type RedisOption func(*RedisStore)

// WithRedisPrefix 设置键前缀，前缀必须包含 hash tag，如 "{shop}:queue:"
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore 创建 Redis 任务存储
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	if !hasHashTag(s.prefix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, s.prefix)
	}
	return s, nil
}

// hasHashTag 按 Redis Cluster 规则判断：第一个 '{' 之后存在非空内容再接 '}'
func hasHashTag(prefix string) bool {
	open := strings.IndexByte(prefix, '{')
	if open < 0 {
		return false
	}
	return strings.IndexByte(prefix[open+1:], '}') > 0
}

func (s *RedisStore) jobKey(id string) string { return s.prefix + "job:" + id }
func (s *RedisStore) jobPrefix() string       { return s.prefix + "job:" }
func (s *RedisStore) readyKey() string        { return s.prefix + "ready" }
func (s *RedisStore) inflightKey() string     { return s.prefix + "inflight" }
func (s *RedisStore) failedKey() string       { return s.prefix + "failed" }

func (s *RedisStore) Enqueue(ctx context.Context, job *Job) (bool, error) {
	data, err := encodeJob(job)
	if err != nil {
		return false, err
	}
	n, err := enqueueScript.Run(ctx, s.client,
		[]string{s.jobKey(job.ID), s.readyKey()},
		data, job.RunAt.UnixMilli(), job.ID, job.Attempts, job.MaxAttempts).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Dequeue 无法解码的任务直接转入 failed，不影响同批其他任务，错误合并返回
func (s *RedisStore) Dequeue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	leaseUntil := now.Add(lease)
	raw, err := dequeueScript.Run(ctx, s.client,
		[]string{s.readyKey(), s.inflightKey()},
		now.UnixMilli(), limit, leaseUntil.UnixMilli(), s.jobPrefix()).Slice()
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(raw)/3)
	var errs []error
	for i := 0; i+2 < len(raw); i += 3 {
		id, _ := raw[i].(string)
		data, _ := raw[i+1].(string)
		attempts, _ := raw[i+2].(int64)
		j, err := decodeJob(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("xqueue: job %s: %w", id, err))
			if perr := s.park(ctx, id, now, err); perr != nil {
				errs = append(errs, perr)
			}
			continue
		}
		j.Attempts = int(attempts)
		j.Status = StatusInFlight
		j.LeaseUntil = leaseUntil
		jobs = append(jobs, j)
	}
	return jobs, errors.Join(errs...)
}

// park 将无法解码的任务转入 failed 保留，供人工排查
func (s *RedisStore) park(ctx context.Context, id string, now time.Time, cause error) error {
	return parkScript.Run(ctx, s.client,
		[]string{s.jobKey(id), s.inflightKey(), s.failedKey()},
		id, now.UnixMilli(), cause.Error()).Err()
}

func (s *RedisStore) Ack(ctx context.Context, job *Job) error {
	n, err := ackScript.Run(ctx, s.client,
		[]string{s.jobKey(job.ID), s.inflightKey(), s.readyKey()},
		job.ID, job.LeaseUntil.UnixMilli()).Int()
	if err != nil {
		return err
	}
	return settleResult(n)
}

func (s *RedisStore) Retry(ctx context.Context, job *Job, runAt time.Time) error {
	j := job.clone()
	j.RunAt = runAt
	j.LeaseUntil = time.Time{}
	return s.move(ctx, j, job.LeaseUntil, s.readyKey(), runAt, StatusPending)
}

func (s *RedisStore) Fail(ctx context.Context, job *Job) error {
	j := job.clone()
	j.LeaseUntil = time.Time{}
	return s.move(ctx, j, job.LeaseUntil, s.failedKey(), j.UpdatedAt, StatusFailed)
}

func (s *RedisStore) move(ctx context.Context, j *Job, lease time.Time, target string, score time.Time, status Status) error {
	j.Status = status
	data, err := encodeJob(j)
	if err != nil {
		return err
	}
	n, err := moveScript.Run(ctx, s.client,
		[]string{s.jobKey(j.ID), s.inflightKey(), s.readyKey(), target},
		data, score.UnixMilli(), j.ID, string(status), lease.UnixMilli(), j.LastError).Int()
	if err != nil {
		return err
	}
	return settleResult(n)
}

// settleResult 解释 ack/move 脚本的返回值
func settleResult(n int) error {
	switch n {
	case -1:
		return ErrJobNotFound
	case 0:
		return ErrLeaseLost
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	vals, err := s.client.HMGet(ctx, s.jobKey(id), jobFields...).Result()
	if err != nil {
		return nil, err
	}
	return jobFromHash(vals)
}

func (s *RedisStore) ListFailed(ctx context.Context, limit int) ([]*Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.failedKey(), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HMGet(ctx, s.jobKey(id), jobFields...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(ids))
	for i, cmd := range cmds {
		j, err := jobFromHash(cmd.Val())
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			// 无法解码的任务只保留 ID 与错误
			errMsg, _ := cmd.Val()[3].(string)
			j = &Job{ID: ids[i], Status: StatusFailed, LastError: errMsg}
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (s *RedisStore) Replay(ctx context.Context, id string, now time.Time) (*Job, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusFailed {
		return nil, ErrNotFailed
	}
	j.Status = StatusPending
	j.Attempts = 0
	j.RunAt = now
	j.UpdatedAt = now
	data, err := encodeJob(j)
	if err != nil {
		return nil, err
	}
	n, err := replayScript.Run(ctx, s.client,
		[]string{s.jobKey(id), s.failedKey(), s.readyKey()},
		data, now.UnixMilli(), id).Int()
	if err != nil {
		return nil, err
	}
	switch n {
	case -1:
		return nil, ErrJobNotFound
	case 0:
		return nil, ErrNotFailed
	}
	return j, nil
}

func (s *RedisStore) Reclaim(ctx context.Context, now time.Time) (int, error) {
	return reclaimScript.Run(ctx, s.client,
		[]string{s.inflightKey(), s.readyKey(), s.failedKey()},
		now.UnixMilli(), s.jobPrefix(), leaseExpired).Int()
}

func encodeJob(j *Job) (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("xqueue: encode job %s: %w", j.ID, err)
	}
	return string(data), nil
}

func decodeJob(data string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("xqueue: decode job: %w", err)
	}
	return &j, nil
}

// jobFromHash 解析 HMGET jobFields 的结果，hash 字段覆盖 data 中的同名字段
func jobFromHash(vals []any) (*Job, error) {
	if len(vals) != len(jobFields) {
		return nil, ErrJobNotFound
	}
	data, ok := vals[0].(string)
	if !ok {
		return nil, ErrJobNotFound
	}
	j, err := decodeJob(data)
	if err != nil {
		return nil, err
	}
	if status, ok := vals[1].(string); ok {
		j.Status = Status(status)
	}
	if attempts, ok := vals[2].(string); ok {
		if n, err := strconv.Atoi(attempts); err == nil {
			j.Attempts = n
		}
	}
	if msg, ok := vals[3].(string); ok && msg != "" {
		j.LastError = msg
	}
	if lease, ok := vals[4].(string); ok {
		if ms, err := strconv.ParseInt(lease, 10, 64); err == nil {
			j.LeaseUntil = time.UnixMilli(ms)
		}
	}
	return j, nil
}
