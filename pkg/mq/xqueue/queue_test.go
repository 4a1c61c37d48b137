package xqueue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func newTestQueue(t *testing.T, opts ...Option) (*Queue, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	q, err := NewQueue(store, opts...)
	require.NoError(t, err)
	return q, store
}

func TestQueue_Enqueue(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	q, _ := newTestQueue(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "email", emailPayload{To: "a@example.com", Subject: "Order shipped"},
		WithMaxAttempts(7),
		WithBackoff(xretry.BackoffFixed, 2*time.Second, 0),
		WithDelay(time.Minute))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "email", job.Kind)
	assert.Equal(t, 7, job.MaxAttempts)
	assert.Equal(t, xretry.BackoffFixed, job.Backoff)
	assert.Equal(t, 2*time.Second, job.InitialDelay)
	assert.Equal(t, now.Add(time.Minute), job.RunAt)
	assert.Equal(t, StatusPending, job.Status)

	var p emailPayload
	require.NoError(t, job.Decode(&p))
	assert.Equal(t, "a@example.com", p.To)
}

func TestQueue_DeterministicIDDedupes(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	parts := []string{"a@example.com", "Order shipped", "2026-05-01T08:00"}
	id1, err := q.Enqueue(ctx, "email", emailPayload{To: "a@example.com"}, WithDeterministicID(parts...))
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, "email", emailPayload{To: "a@example.com"}, WithDeterministicID(parts...))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, DeterministicID("email", parts...), id1)
	assert.Equal(t, 1, store.Len())

	id3, err := q.Enqueue(ctx, "email", nil, WithJobID("fixed-id"))
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id3)
}

func TestDeterministicID(t *testing.T) {
	assert.Equal(t, DeterministicID("email", "a", "b"), DeterministicID("email", "a", "b"))
	assert.NotEqual(t, DeterministicID("email", "ab", "c"), DeterministicID("email", "a", "bc"))
	assert.NotEqual(t, DeterministicID("email", "a"), DeterministicID("webhook", "a"))
	assert.Regexp(t, `^email:[0-9a-f]+$`, DeterministicID("email", "a"))
	assert.NotEqual(t, NewID(), NewID())
}

func TestQueue_EnqueuePayloadForms(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "webhook", json.RawMessage(`{"url":"https://example.com/hook"}`))
	require.NoError(t, err)
	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com/hook"}`, string(job.Payload))

	_, err = q.Enqueue(ctx, "webhook", []byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidJob)
	_, err = q.Enqueue(ctx, "webhook", make(chan int))
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestQueue_EnqueueInvalid(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyKind)
	_, err = q.Enqueue(context.Background(), "email", nil, WithMaxAttempts(0))
	assert.ErrorIs(t, err, ErrInvalidJob)
	_, err = q.Enqueue(context.Background(), "email", nil, WithDelay(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidJob)
	_, err = q.Enqueue(nil, "email", nil) //nolint:staticcheck // nil ctx 分支
	assert.ErrorIs(t, err, ErrNilContext)

	_, err = NewQueue(nil)
	assert.ErrorIs(t, err, ErrNilStore)
	_, err = NewQueue(NewMemoryStore(), WithRetryPolicy(xretry.Policy{}))
	assert.ErrorIs(t, err, xretry.ErrInvalidPolicy)
}

func TestQueue_Register(t *testing.T) {
	q, _ := newTestQueue(t)
	h := func(context.Context, *Job) error { return nil }

	require.NoError(t, q.Register("email", h))
	assert.ErrorIs(t, q.Register("email", h), ErrDuplicateKind)
	assert.ErrorIs(t, q.Register("", h), ErrEmptyKind)
	assert.ErrorIs(t, q.Register("webhook", nil), ErrNilHandler)
	assert.Equal(t, []string{"email"}, q.Kinds())
}

func TestQueue_BreakerEnqueueFallback(t *testing.T) {
	q, store := newTestQueue(t)
	b, err := xbreaker.New("smtp", xbreaker.Config{FailureThreshold: 1})
	require.NoError(t, err)
	ctx := context.Background()

	_ = b.Do(ctx, func(context.Context) error { return assert.AnError })
	require.Equal(t, xbreaker.StateOpen, b.State())

	fb := xbreaker.Enqueue[string](q, "email", emailPayload{To: "a@example.com"})
	got, err := xbreaker.Execute(ctx, b, func(context.Context) (string, error) {
		t.Fatal("operation must not run while open")
		return "", nil
	}, fb)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, store.Len())
}
