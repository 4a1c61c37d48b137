// xguardd 是电商韧性层服务：断路器、限流、重试与可靠投递队列。
//
// 用法:
//
//	xguardd [全局选项] <命令> [命令参数]
//
// 命令:
//
//	serve              启动服务（HTTP 管理接口、队列 Worker、定时任务）
//	check              校验配置文件并输出生效配置
//	breakers           查看断路器状态
//	breakers reset <name>
//	                   重置断路器
//	jobs failed        列出永久失败的任务
//	jobs replay <id>   重新投递失败任务
//
// 退出码:
//
//	0: 成功
//	1: 执行失败
//	2: 参数错误
//
// 示例:
//
//	xguardd serve -c /etc/xguardd/config.yaml
//	xguardd --addr http://10.0.0.5:8080 breakers
//	xguardd jobs replay 3f1c0e9a-6d2b-4c39-9a51-0b7e2d4f8a10
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

const (
	defaultAdminAddr = "http://127.0.0.1:8080"
	defaultTimeout   = 10 * time.Second
)

// 版本信息（可通过 -ldflags 注入）
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xguardd",
		Usage:   "电商韧性层服务",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "管理接口地址（客户端命令使用）",
				Value:   defaultAdminAddr,
				Sources: cli.EnvVars("XGUARD_ADDR"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "客户端请求超时",
				Value:   defaultTimeout,
			},
		},
		Commands: createCommands(),
		// 退出码统一由 run 映射
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	// serve 自行处理信号，这里只覆盖客户端命令
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}
