package xqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = xretry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Backoff: xretry.BackoffFixed}
	cfg.Concurrency = 2
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Lease = time.Second
	cfg.HandlerTimeout = 200 * time.Millisecond
	return cfg
}

// startWorker 在后台运行 Worker，测试结束时停止并等待退出
func startWorker(t *testing.T, q *Queue, cfg Config) *Worker {
	t.Helper()
	w, err := NewWorker(q, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return w
}

func newWorkerQueue(t *testing.T, opts ...Option) (*Queue, *MemoryStore) {
	t.Helper()
	return newTestQueue(t, append([]Option{WithRetryPolicy(fastConfig().Retry)}, opts...)...)
}

func TestWorker_RetriesUntilSuccess(t *testing.T) {
	q, store := newWorkerQueue(t)
	var calls atomic.Int32
	done := make(chan struct{})
	require.NoError(t, q.Register("email", func(_ context.Context, j *Job) error {
		n := calls.Add(1)
		assert.Equal(t, int(n), j.Attempts)
		if n < 3 {
			return errors.New("smtp: connection reset")
		}
		close(done)
		return nil
	}))
	startWorker(t, q, fastConfig())

	id, err := q.Enqueue(context.Background(), "email", emailPayload{To: "a@example.com"})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not delivered")
	}
	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	_, err = q.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorker_ExhaustedJobRetained(t *testing.T) {
	q, _ := newWorkerQueue(t)
	var calls atomic.Int32
	require.NoError(t, q.Register("webhook", func(context.Context, *Job) error {
		calls.Add(1)
		return errors.New("HTTP 503")
	}))
	startWorker(t, q, fastConfig())

	id, err := q.Enqueue(context.Background(), "webhook", map[string]string{"url": "https://example.com"})
	require.NoError(t, err)

	var job *Job
	require.Eventually(t, func() bool {
		job, err = q.Get(context.Background(), id)
		return err == nil && job.Status == StatusFailed
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, job.Attempts)
	assert.Equal(t, "HTTP 503", job.LastError)
	assert.Equal(t, int32(3), calls.Load())

	failed, err := q.ListFailed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, id, failed[0].ID)
}

func TestWorker_PermanentErrorAndReplay(t *testing.T) {
	q, _ := newWorkerQueue(t)
	var (
		calls  atomic.Int32
		broken atomic.Bool
	)
	broken.Store(true)
	delivered := make(chan struct{})
	require.NoError(t, q.Register("email", func(context.Context, *Job) error {
		calls.Add(1)
		if broken.Load() {
			return xretry.NewPermanentError(errors.New("invalid recipient"))
		}
		close(delivered)
		return nil
	}))
	startWorker(t, q, fastConfig())

	id, err := q.Enqueue(context.Background(), "email", emailPayload{To: "bad"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := q.Get(context.Background(), id)
		return err == nil && j.Status == StatusFailed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	broken.Store(false)
	replayed, err := q.Replay(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, replayed.Attempts)

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("replayed job was not delivered")
	}
	_, err = q.Replay(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestWorker_PanicIsRetried(t *testing.T) {
	q, _ := newWorkerQueue(t)
	var calls atomic.Int32
	done := make(chan struct{})
	require.NoError(t, q.Register("scan", func(context.Context, *Job) error {
		if calls.Add(1) == 1 {
			panic("nil map")
		}
		close(done)
		return nil
	}))
	startWorker(t, q, fastConfig())

	_, err := q.Enqueue(context.Background(), "scan", nil)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job was not retried after panic")
	}
}

func TestWorker_HandlerTimeout(t *testing.T) {
	q, _ := newWorkerQueue(t)
	require.NoError(t, q.Register("webhook", func(ctx context.Context, _ *Job) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	cfg := fastConfig()
	cfg.HandlerTimeout = 10 * time.Millisecond
	startWorker(t, q, cfg)

	id, err := q.Enqueue(context.Background(), "webhook", nil, WithMaxAttempts(1))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, err := q.Get(context.Background(), id)
		return err == nil && j.Status == StatusFailed && j.LastError == context.DeadlineExceeded.Error()
	}, time.Second, 5*time.Millisecond)
}

func TestWorker_UnknownKindFailsPermanently(t *testing.T) {
	q, _ := newWorkerQueue(t)
	startWorker(t, q, fastConfig())

	id, err := q.Enqueue(context.Background(), "sms", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, err := q.Get(context.Background(), id)
		return err == nil && j.Status == StatusFailed && j.Attempts == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWorker_ConcurrencyBound(t *testing.T) {
	q, _ := newWorkerQueue(t)
	var (
		mu      sync.Mutex
		running int
		peak    int
		wg      sync.WaitGroup
	)
	wg.Add(6)
	require.NoError(t, q.Register("scan", func(context.Context, *Job) error {
		defer wg.Done()
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}))
	startWorker(t, q, fastConfig())

	for range 6 {
		_, err := q.Enqueue(context.Background(), "scan", nil)
		require.NoError(t, err)
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

func TestWorker_ShutdownWaitsForHandlers(t *testing.T) {
	q, store := newWorkerQueue(t)
	started := make(chan struct{})
	require.NoError(t, q.Register("email", func(context.Context, *Job) error {
		close(started)
		time.Sleep(30 * time.Millisecond)
		return nil
	}))
	w, err := NewWorker(q, fastConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	_, err = q.Enqueue(context.Background(), "email", nil)
	require.NoError(t, err)
	<-started
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, store.Len())
	assert.Zero(t, w.Inflight())
}

func TestWorker_RunTwice(t *testing.T) {
	q, _ := newWorkerQueue(t)
	w := startWorker(t, q, fastConfig())
	require.Eventually(t, func() bool { return w.running.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, w.Run(context.Background()), ErrWorkerRunning)
}

func TestWorker_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)
	q, _ := newWorkerQueue(t, WithMetrics(m))

	var calls atomic.Int32
	require.NoError(t, q.Register("email", func(context.Context, *Job) error {
		if calls.Add(1) == 1 {
			return errors.New("temporary")
		}
		return nil
	}))
	startWorker(t, q, fastConfig())

	_, err = q.Enqueue(context.Background(), "email", nil)
	require.NoError(t, err)

	outcomes := map[string]int64{}
	require.Eventually(t, func() bool {
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			return false
		}
		clear(outcomes)
		for _, sm := range rm.ScopeMetrics {
			for _, mt := range sm.Metrics {
				sum, ok := mt.Data.(metricdata.Sum[int64])
				if !ok {
					continue
				}
				for _, dp := range sum.DataPoints {
					key := mt.Name
					if v, ok := dp.Attributes.Value("outcome"); ok {
						key += ":" + v.AsString()
					}
					outcomes[key] += dp.Value
				}
			}
		}
		return outcomes[metricProcessed+":"+OutcomeCompleted] == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), outcomes[metricEnqueued])
	assert.Equal(t, int64(1), outcomes[metricProcessed+":"+OutcomeRetried])
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Lease = cfg.HandlerTimeout
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Concurrency = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := NewWorker(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilStore)
}
