package xconf

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "xguard.yaml", "log:\n  level: info\n")
	cfg, err := New(path)
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		levels []string
		errs   int
	)
	w, err := NewWatcher(cfg, func(c Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs++
			return
		}
		levels = append(levels, c.Client().String("log.level"))
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// 给 fsnotify 注册留出时间
	time.Sleep(50 * time.Millisecond)
	for range 3 {
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "debug", levels[len(levels)-1])
	assert.Zero(t, errs)
}

func TestNewWatcher_Errors(t *testing.T) {
	_, err := NewWatcher(nil, nil)
	assert.ErrorIs(t, err, ErrNilConfig)

	cfg, err := NewFromBytes(nil, FormatJSON)
	require.NoError(t, err)
	_, err = NewWatcher(cfg, nil)
	assert.ErrorIs(t, err, ErrNotReloadable)
}
