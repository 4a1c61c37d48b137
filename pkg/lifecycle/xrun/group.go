package xrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xguard/pkg/observability/xlog"
)

// Func 可运行的服务：阻塞到 ctx 取消或出错
type Func func(ctx context.Context) error

// Service 带名称的服务
type Service struct {
	Name string
	Run  Func
}

// Named 构造带名称的服务
func Named(name string, fn Func) Service {
	return Service{Name: name, Run: fn}
}

// Group 并发运行服务，任一失败即取消全部
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *options
}

// NewGroup 创建 Group，返回的 ctx 在任一服务出错或 Cancel 时取消
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{eg: eg, ctx: egCtx, causeCtx: causeCtx, cancel: cancel, opts: o}, egCtx
}

// Go 启动一个服务
func (g *Group) Go(svc Service) {
	g.eg.Go(func() error {
		if svc.Run == nil {
			return ErrNilFunc
		}
		attrs := []slog.Attr{xlog.Name(g.opts.name), slog.String("service", svc.Name)}
		g.opts.logger.Debug(g.ctx, "service starting", attrs...)

		err := svc.Run(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.opts.logger.Error(g.ctx, "service exited with error", append(attrs, xlog.Err(err))...)
		} else {
			g.opts.logger.Debug(g.ctx, "service stopped", attrs...)
		}
		return err
	})
}

// Cancel 以 cause 为原因取消所有服务，Wait 会返回该原因
func (g *Group) Cancel(cause error) { g.cancel(cause) }

// Wait 等待全部服务退出。
//
// 服务返回的 context.Canceled 在 Group 被取消时视为正常退出；
// 若取消带有显式原因（如 *SignalError），返回该原因。
func (g *Group) Wait() error {
	defer g.cancel(nil)

	err := g.eg.Wait()
	cause := g.explicitCause()
	switch {
	case errors.Is(err, context.Canceled) && g.causeCtx.Err() != nil:
		return cause
	case err == nil:
		return cause
	default:
		return err
	}
}

func (g *Group) explicitCause() error {
	if g.causeCtx.Err() == nil {
		return nil
	}
	if cause := context.Cause(g.causeCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// Run 运行服务直到全部退出，默认在收到退出信号时取消并返回 *SignalError
func Run(ctx context.Context, opts []Option, services ...Service) error {
	g, _ := NewGroup(ctx, opts...)
	if !g.opts.noSignal {
		g.Go(Named("signal", g.watchSignals))
	}
	for _, svc := range services {
		g.Go(svc)
	}
	return g.Wait()
}

func (g *Group) watchSignals(ctx context.Context) error {
	signals := g.opts.signals
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	defer signal.Stop(ch)

	var sig os.Signal
	select {
	case sig = <-injectedSignals(ctx):
	case sig = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.opts.logger.Info(ctx, "received signal", xlog.Name(g.opts.name), slog.String("signal", sig.String()))
	g.cancel(&SignalError{Signal: sig})
	return nil
}

type signalChanKey struct{}

// injectedSignals 返回经由 ctx 注入的信号通道，未注入时为 nil（永远阻塞）
func injectedSignals(ctx context.Context) <-chan os.Signal {
	c, _ := ctx.Value(signalChanKey{}).(<-chan os.Signal)
	return c
}
