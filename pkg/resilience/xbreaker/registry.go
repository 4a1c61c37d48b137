package xbreaker

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry 断路器注册表
//
// 启动时构建并注入调用方，避免包级单例；测试中可创建相互隔离的实例。
type Registry struct {
	defaults Config
	configs  map[string]Config
	opts     []Option

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// RegistryOption 注册表选项
type RegistryOption func(*Registry)

// WithDefaultConfig 未单独配置的断路器使用的配置
func WithDefaultConfig(cfg Config) RegistryOption {
	return func(r *Registry) { r.defaults = cfg }
}

// WithConfig 为指定名称设置配置
func WithConfig(name string, cfg Config) RegistryOption {
	return func(r *Registry) { r.configs[name] = cfg }
}

// WithBreakerOptions 应用到每个断路器的选项（日志、指标、时钟、回调）
func WithBreakerOptions(opts ...Option) RegistryOption {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

// NewRegistry 创建注册表，校验所有配置
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		defaults: DefaultConfig(),
		configs:  make(map[string]Config),
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default: %w", err)
	}
	for name, cfg := range r.configs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return r, nil
}

// Get 返回指定名称的断路器，不存在时按配置创建
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[name]; ok {
		return b
	}
	cfg, ok := r.configs[name]
	if !ok {
		cfg = r.defaults
	}
	// 配置已在 NewRegistry 中校验
	b, _ = New(name, cfg, r.opts...)
	r.breakers[name] = b
	return b
}

// Lookup 返回已创建的断路器
func (r *Registry) Lookup(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Reset 手动重置指定断路器
func (r *Registry) Reset(name string) error {
	b, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBreaker, name)
	}
	b.Reset()
	return nil
}

// Snapshots 返回所有断路器的快照，按名称排序
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	slices.SortFunc(out, func(a, b Snapshot) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Do 使用指定名称的断路器执行操作
func (r *Registry) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return r.Get(name).Do(ctx, fn)
}
