package xlimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var scenarioPolicy = Policy{Name: "checkout", Window: 60000 * time.Millisecond, MaxRequests: 5}

// assertScenario 5 次放行 remaining 依次为 4..0，第 6 次拒绝；窗口过后重新计数
func assertScenario(t *testing.T, l *Limiter, clock *fakeClock) {
	t.Helper()
	ctx := context.Background()

	for want := int64(4); want >= 0; want-- {
		res, err := l.Allow(ctx, "user:42", scenarioPolicy)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, want, res.Remaining)
		assert.Equal(t, int64(5), res.Limit)
	}

	clock.Advance(10 * time.Second)
	res, err := l.Allow(ctx, "user:42", scenarioPolicy)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, 50*time.Second, res.RetryAfter)
	assert.Equal(t, int64(50), res.RetryAfterSeconds())
	assert.True(t, IsDenied(res.Err()))

	// 拒绝不推高计数也不刷新窗口
	res, err = l.Allow(ctx, "user:42", scenarioPolicy)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 50*time.Second, res.RetryAfter)

	clock.Advance(50 * time.Second)
	res, err = l.Allow(ctx, "user:42", scenarioPolicy)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(4), res.Remaining)
	assert.True(t, clock.Now().Add(time.Minute).Equal(res.ResetAt))
}

func TestLimiter_ScenarioLocal(t *testing.T) {
	clock := newFakeClock()
	l, err := New(newLocal(t, clock), WithClock(clock.Now))
	require.NoError(t, err)
	assertScenario(t, l, clock)
}

func TestLimiter_ScenarioRedis(t *testing.T) {
	clock := newFakeClock()
	_, client := setupMiniredis(t)
	store, err := NewRedisStore(client, WithRedisClock(clock.Now))
	require.NoError(t, err)
	l, err := New(store, WithClock(clock.Now))
	require.NoError(t, err)
	assertScenario(t, l, clock)
}

func TestLimiter_PoliciesIsolated(t *testing.T) {
	clock := newFakeClock()
	l, err := New(newLocal(t, clock), WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	for range Auth.MaxRequests {
		res, err := l.Allow(ctx, "ip:10.0.0.1", Auth)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, _ := l.Allow(ctx, "ip:10.0.0.1", Auth)
	assert.False(t, res.Allowed)

	res, err = l.Allow(ctx, "ip:10.0.0.1", General)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, General.MaxRequests-1, res.Remaining)
	assert.Equal(t, "ratelimit:general:ip:10.0.0.1", res.Key)
}

func TestLimiter_QueryAndReset(t *testing.T) {
	clock := newFakeClock()
	l, err := New(newLocal(t, clock), WithClock(clock.Now), WithKeyPrefix("rl:"))
	require.NoError(t, err)
	ctx := context.Background()

	res, err := l.Query(ctx, "user:1", scenarioPolicy)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(5), res.Remaining)

	_, _ = l.Allow(ctx, "user:1", scenarioPolicy)
	_, _ = l.Allow(ctx, "user:1", scenarioPolicy)
	res, err = l.Query(ctx, "user:1", scenarioPolicy)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Remaining)

	// Query 不消耗配额
	res, _ = l.Query(ctx, "user:1", scenarioPolicy)
	assert.Equal(t, int64(3), res.Remaining)

	require.NoError(t, l.Reset(ctx, "user:1", scenarioPolicy))
	res, _ = l.Query(ctx, "user:1", scenarioPolicy)
	assert.Equal(t, int64(5), res.Remaining)
}

func TestLimiter_InvalidInput(t *testing.T) {
	clock := newFakeClock()
	l, err := New(newLocal(t, clock))
	require.NoError(t, err)

	_, err = l.Allow(context.Background(), "", General)
	assert.ErrorIs(t, err, ErrEmptyIdentity)
	_, err = l.Allow(context.Background(), "user:1", Policy{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestLimiter_StoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockCounterStore(ctrl)
	store.EXPECT().Hit(gomock.Any(), "ratelimit:general:user:1", int64(100), time.Minute).
		Return(Window{}, false, errors.New("boom"))

	l, err := New(store)
	require.NoError(t, err)
	_, err = l.Allow(context.Background(), "user:1", General)
	assert.EqualError(t, err, "boom")
}

func TestPresets(t *testing.T) {
	presets := Presets()
	require.Len(t, presets, 4)
	for name, p := range presets {
		assert.Equal(t, name, p.Name)
		assert.NoError(t, p.Validate())
	}
	assert.Equal(t, 15*time.Minute, presets["auth"].Window)
}

func TestLimitError(t *testing.T) {
	err := Result{Policy: "auth", RetryAfter: 1500 * time.Millisecond}.Err()
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.False(t, le.Retryable())
	assert.Equal(t, int64(2), Result{RetryAfter: 1500 * time.Millisecond}.RetryAfterSeconds())
	assert.NoError(t, Result{Allowed: true}.Err())
}
