package xqueue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanPayload struct {
	Tick time.Time `json:"tick"`
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func TestScheduler_FireIsIdempotentPerTick(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 42, 0, time.UTC)
	q, store := newTestQueue(t)
	s, err := NewScheduler(q, WithSchedulerClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	payload := func(tick time.Time) any { return scanPayload{Tick: tick} }
	id1 := s.Fire(ctx, "stock-alerts", "stock-alert-scan", payload)
	id2 := s.Fire(ctx, "stock-alerts", "stock-alert-scan", payload)
	require.NotEmpty(t, id1)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, store.Len())

	tick := now.Truncate(time.Minute)
	assert.Equal(t, DeterministicID("stock-alert-scan", "stock-alerts", strconv.FormatInt(tick.Unix(), 10)), id1)

	job, err := q.Get(ctx, id1)
	require.NoError(t, err)
	var p scanPayload
	require.NoError(t, job.Decode(&p))
	assert.True(t, tick.Equal(p.Tick))

	now = now.Add(time.Minute)
	id3 := s.Fire(ctx, "stock-alerts", "stock-alert-scan", payload)
	assert.NotEqual(t, id1, id3)
	assert.Equal(t, 2, store.Len())
}

func TestScheduler_LockSkipsOtherInstances(t *testing.T) {
	locker := &fakeLocker{held: map[string]bool{}}
	q, store := newTestQueue(t)
	clock := func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }
	a, err := NewScheduler(q, WithLocker(locker), WithSchedulerClock(clock))
	require.NoError(t, err)
	b, err := NewScheduler(q, WithLocker(locker), WithSchedulerClock(clock))
	require.NoError(t, err)

	assert.NotEmpty(t, a.Fire(context.Background(), "scan", "stock-alert-scan", nil))
	assert.Empty(t, b.Fire(context.Background(), "scan", "stock-alert-scan", nil))
	assert.Equal(t, 1, store.Len())

	// 锁服务故障时照常提交
	locker.err = errors.New("redis down")
	assert.NotEmpty(t, b.Fire(context.Background(), "other", "stock-alert-scan", nil))
}

func TestRedisLocker(t *testing.T) {
	_, client := setupMiniredis(t)
	l, err := NewRedisLocker(client)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "schedule:scan:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "schedule:scan:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.TryLock(ctx, "schedule:scan:2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = NewRedisLocker()
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestScheduler_AddRecurring(t *testing.T) {
	q, store := newTestQueue(t)
	s, err := NewScheduler(q, WithSeconds(), WithLocation(time.UTC))
	require.NoError(t, err)

	require.NoError(t, s.AddRecurring("scan", "@every 1s", "stock-alert-scan", nil))
	assert.ErrorIs(t, s.AddRecurring("scan", "@every 1s", "stock-alert-scan", nil), ErrInvalidSpec)
	assert.ErrorIs(t, s.AddRecurring("bad", "not a spec", "stock-alert-scan", nil), ErrInvalidSpec)
	assert.ErrorIs(t, s.AddRecurring("", "@every 1s", "stock-alert-scan", nil), ErrInvalidSpec)
	assert.Contains(t, s.Entries(), "scan")

	s.Start()
	require.Eventually(t, func() bool { return store.Len() >= 1 }, 3*time.Second, 10*time.Millisecond)
	<-s.Stop().Done()

	s.Remove("scan")
	assert.Empty(t, s.Entries())
}
