package xlimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultLocalCapacity   = 100_000
	defaultCleanupInterval = time.Minute
)

var _ CounterStore = (*LocalStore)(nil)

// LocalStore 进程内计数存储
//
// 容量有上限，超出时淘汰最久未访问的窗口；后台 goroutine 定期清理过期窗口。
// 使用完毕需调用 Close 停止清理。
type LocalStore struct {
	mu      sync.Mutex
	windows *lru.Cache[string, Window]
	now     func() time.Time

	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// LocalOption LocalStore 选项
type LocalOption func(*localConfig)

type localConfig struct {
	capacity int
	interval time.Duration
	now      func() time.Time
}

// WithCapacity 最大窗口数
func WithCapacity(n int) LocalOption {
	return func(c *localConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithCleanupInterval 过期清理间隔，<= 0 时不启动后台清理
func WithCleanupInterval(d time.Duration) LocalOption {
	return func(c *localConfig) { c.interval = d }
}

// WithLocalClock 注入时钟
func WithLocalClock(now func() time.Time) LocalOption {
	return func(c *localConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// NewLocalStore 创建本地计数存储并启动后台清理
func NewLocalStore(opts ...LocalOption) (*LocalStore, error) {
	cfg := localConfig{
		capacity: defaultLocalCapacity,
		interval: defaultCleanupInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cache, err := lru.New[string, Window](cfg.capacity)
	if err != nil {
		return nil, err
	}
	s := &LocalStore{
		windows:  cache,
		now:      cfg.now,
		interval: cfg.interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if s.interval > 0 {
		go s.janitor()
	} else {
		close(s.done)
	}
	return s, nil
}

func (s *LocalStore) Type() string { return StoreLocal }

func (s *LocalStore) Hit(_ context.Context, key string, limit int64, window time.Duration) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows.Get(key)
	if !ok || w.Expired(now) {
		w = Window{Count: 1, ResetAt: now.Add(window)}
		s.windows.Add(key, w)
		return w, true, nil
	}
	if w.Count >= limit {
		return w, false, nil
	}
	w.Count++
	s.windows.Add(key, w)
	return w, true, nil
}

func (s *LocalStore) Get(_ context.Context, key string) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows.Peek(key)
	if !ok || w.Expired(s.now()) {
		return Window{}, false, nil
	}
	return w, true, nil
}

func (s *LocalStore) SetWithTTL(_ context.Context, key string, w Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.Expired(s.now()) {
		s.windows.Remove(key)
		return nil
	}
	s.windows.Add(key, w)
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows.Remove(key)
	return nil
}

// Len 当前窗口数（含尚未清理的过期窗口）
func (s *LocalStore) Len() int {
	return s.windows.Len()
}

// Prune 清理过期窗口，返回清理数量
func (s *LocalStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for _, key := range s.windows.Keys() {
		if w, ok := s.windows.Peek(key); ok && w.Expired(now) {
			s.windows.Remove(key)
			removed++
		}
	}
	return removed
}

func (s *LocalStore) janitor() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Prune()
		case <-s.stop:
			return
		}
	}
}

// Close 停止后台清理，可重复调用
func (s *LocalStore) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
