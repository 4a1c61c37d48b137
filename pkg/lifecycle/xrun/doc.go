// Package xrun 管理 xguardd 进程内各服务的并发运行与协调关闭。
//
// Group 基于 errgroup：任一服务返回错误或收到退出信号时取消共享的 ctx，
// 其余服务随之优雅退出。Run 额外监听 SIGINT/SIGTERM 等信号，
// 信号退出时返回 *SignalError，可用 errors.Is(err, ErrSignal) 判断。
//
//	err := xrun.Run(ctx, []xrun.Option{xrun.WithLogger(logger)},
//	    xrun.Named("http", xrun.HTTPServer(srv, 10*time.Second)),
//	    xrun.Named("worker", worker.Run),
//	)
package xrun
