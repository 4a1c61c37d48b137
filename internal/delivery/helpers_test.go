package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omeyang/xguard/pkg/mq/xqueue"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

type instantTimer struct{}

func (instantTimer) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func newRetry(attempts int) *xretry.Executor {
	return xretry.New(xretry.Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond}, xretry.WithTimer(instantTimer{}))
}

func newRegistry(t *testing.T, threshold int) *xbreaker.Registry {
	t.Helper()
	r, err := xbreaker.NewRegistry(
		xbreaker.WithDefaultConfig(xbreaker.Config{FailureThreshold: threshold}),
		xbreaker.WithBreakerOptions(xbreaker.WithIsSuccessful(BreakerSuccess)),
	)
	require.NoError(t, err)
	return r
}

func newQueue(t *testing.T) (*xqueue.Queue, *xqueue.MemoryStore) {
	t.Helper()
	store := xqueue.NewMemoryStore()
	q, err := xqueue.NewQueue(store)
	require.NoError(t, err)
	return q, store
}

// jobFor 通过队列写入再取出，得到与 Worker 看到的一致的任务
func jobFor(t *testing.T, q *xqueue.Queue, kind string, payload any) *xqueue.Job {
	t.Helper()
	id, err := q.Enqueue(context.Background(), kind, payload)
	require.NoError(t, err)
	job, err := q.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

var errSMTP = errors.New("smtp: connection reset")

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []Email
}

func (m *fakeMailer) Send(_ context.Context, msg Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
