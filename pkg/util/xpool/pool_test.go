package xpool

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/xguard/pkg/observability/xlog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_Basic(t *testing.T) {
	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(5)

	pool, err := New(2, 10, func(int) {
		processed.Add(1)
		wg.Done()
	})
	require.NoError(t, err)
	defer pool.Close()

	for i := range 5 {
		require.NoError(t, pool.Submit(i))
	}
	wg.Wait()
	assert.Equal(t, int32(5), processed.Load())
	assert.Equal(t, 2, pool.Workers())
	assert.Equal(t, 10, pool.QueueSize())
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool, err := New(1, 1, func(int) {
		started <- struct{}{}
		<-release
	})
	require.NoError(t, err)

	require.NoError(t, pool.Submit(1))
	<-started
	require.NoError(t, pool.Submit(2))
	assert.ErrorIs(t, pool.Submit(3), ErrQueueFull)

	close(release)
	require.NoError(t, pool.Close())
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	var processed atomic.Int32
	pool, err := New(1, 10, func(int) {
		time.Sleep(time.Millisecond)
		processed.Add(1)
	})
	require.NoError(t, err)

	for i := range 5 {
		require.NoError(t, pool.Submit(i))
	}
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, int32(5), processed.Load())
	assert.ErrorIs(t, pool.Submit(6), ErrPoolStopped)
	require.NoError(t, pool.Close())
}

func TestPool_ShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	pool, err := New(1, 1, func(int) { <-release })
	require.NoError(t, err)
	require.NoError(t, pool.Submit(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	<-pool.Done()
	assert.ErrorIs(t, pool.Shutdown(nil), ErrNilContext) //nolint:staticcheck // nil ctx 分支
}

func TestPool_PanicRecovered(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := xlog.New().SetOutput(&buf).Build()
	require.NoError(t, err)

	var processed atomic.Int32
	pool, err := New(1, 10, func(n int) {
		if n == 0 {
			panic("boom")
		}
		processed.Add(1)
	}, WithLogger(logger), WithName("jobs"))
	require.NoError(t, err)

	require.NoError(t, pool.Submit(0))
	require.NoError(t, pool.Submit(1))
	require.NoError(t, pool.Close())

	assert.Equal(t, int32(1), processed.Load())
	assert.Contains(t, buf.String(), "worker panic recovered")
	assert.Contains(t, buf.String(), "task_type=int")
	assert.Contains(t, buf.String(), "name=jobs")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New[int](1, 1, nil)
	assert.ErrorIs(t, err, ErrNilHandler)
	_, err = New(0, 1, func(int) {})
	assert.ErrorIs(t, err, ErrInvalidWorkers)
	_, err = New(1, 0, func(int) {})
	assert.ErrorIs(t, err, ErrInvalidQueueSize)
}
