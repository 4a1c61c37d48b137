package xconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/omeyang/xguard/pkg/observability/xlog"
)

// ReloadFunc 重载回调，err 非 nil 表示重载失败且旧配置仍生效
type ReloadFunc func(cfg Config, err error)

// Watcher 监视配置文件并在变更后重载
type Watcher struct {
	cfg      Config
	fs       *fsnotify.Watcher
	onReload ReloadFunc
	debounce time.Duration
	logger   xlog.Logger
}

// WatchOption 监视器选项
type WatchOption func(*Watcher)

// WithDebounce 设置防抖间隔，默认 100ms
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger 设置日志记录器
func WithWatchLogger(l xlog.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher 为文件配置创建监视器。
//
// 监视的是文件所在目录：编辑器和 ConfigMap 会以 rename 方式替换文件，
// 直接监视文件会在替换后丢失后续事件。
func NewWatcher(cfg Config, onReload ReloadFunc, opts ...WatchOption) (*Watcher, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Path() == "" {
		return nil, ErrNotReloadable
	}

	w := &Watcher{
		cfg:      cfg,
		onReload: onReload,
		debounce: 100 * time.Millisecond,
		logger:   xlog.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: create watcher: %w", err)
	}
	dir := filepath.Dir(cfg.Path())
	if err := fs.Add(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("xconf: watch %s: %w", dir, err), fs.Close())
	}
	w.fs = fs
	return w, nil
}

// Run 处理文件事件直到 ctx 取消。返回时已关闭底层 watcher，之后不会再回调。
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fs.Close() }()

	name := filepath.Base(w.cfg.Path())
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload(ctx)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "config watch error", xlog.Err(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	err := w.cfg.Reload()
	if err != nil {
		w.logger.Error(ctx, "config reload failed", slog.String("path", w.cfg.Path()), xlog.Err(err))
	} else {
		w.logger.Info(ctx, "config reloaded", slog.String("path", w.cfg.Path()))
	}
	if w.onReload != nil {
		w.onReload(w.cfg, err)
	}
}

// relevant 写入、新建与 rename 替换都可能是配置更新
func relevant(ev fsnotify.Event) bool {
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
