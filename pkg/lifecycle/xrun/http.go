package xrun

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server 可优雅关闭的服务器，*http.Server 满足该接口
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServer 把 Server 包装为服务：ctx 取消后在 shutdownTimeout 内优雅关闭。
// shutdownTimeout 不大于 0 时等待所有在途请求结束。
func HTTPServer(srv Server, shutdownTimeout time.Duration) Func {
	return func(ctx context.Context) error {
		if srv == nil {
			return ErrNilServer
		}
		shutdownErr := make(chan error, 1)
		served := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				sctx := context.WithoutCancel(ctx)
				if shutdownTimeout > 0 {
					var cancel context.CancelFunc
					sctx, cancel = context.WithTimeout(sctx, shutdownTimeout)
					defer cancel()
				}
				shutdownErr <- srv.Shutdown(sctx)
			case <-served:
			}
		}()

		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			close(served)
			return err
		}
		select {
		case <-ctx.Done():
			return <-shutdownErr
		default:
			// 外部直接关闭
			close(served)
			return nil
		}
	}
}
