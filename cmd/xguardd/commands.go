package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xguard/internal/app"
	"github.com/omeyang/xguard/pkg/config/xconf"
	"github.com/omeyang/xguard/pkg/lifecycle/xrun"
	"github.com/omeyang/xguard/pkg/observability/xlog"
)

// usageError 参数错误，退出码 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func createCommands() []*cli.Command {
	return []*cli.Command{
		createServeCommand(),
		createCheckCommand(),
		createBreakersCommand(),
		createJobsCommand(),
	}
}

func createBreakersCommand() *cli.Command {
	return &cli.Command{
		Name:  "breakers",
		Usage: "查看断路器状态",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return clientFrom(cmd).show(ctx, http.MethodGet, "/admin/breakers", cmd.Root().Writer)
		},
		Commands: []*cli.Command{
			{
				Name:      "reset",
				Usage:     "重置断路器",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name, err := requireArg(cmd, "name")
					if err != nil {
						return err
					}
					if err := clientFrom(cmd).show(ctx, http.MethodPost, "/admin/breakers/"+name+"/reset", io.Discard); err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.Root().Writer, "breaker %s reset\n", name)
					return err
				},
			},
		},
	}
}

func createJobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "管理投递队列中永久失败的任务",
		Commands: []*cli.Command{
			{
				Name:  "failed",
				Usage: "列出永久失败的任务",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "最多列出的任务数，0 表示全部", Value: 20},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := fmt.Sprintf("/admin/jobs/failed?limit=%d", cmd.Int("limit"))
					return clientFrom(cmd).show(ctx, http.MethodGet, path, cmd.Root().Writer)
				},
			},
			{
				Name:      "replay",
				Usage:     "重新投递失败任务",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "id")
					if err != nil {
						return err
					}
					return clientFrom(cmd).show(ctx, http.MethodPost, "/admin/jobs/"+id+"/replay", cmd.Root().Writer)
				},
			},
		},
	}
}

func createServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "启动服务",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件（YAML/JSON），为空时使用默认配置",
				Sources: cli.EnvVars("XGUARD_CONFIG"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, cmd.String("config"))
		},
	}
}

func createCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "校验配置文件并输出生效配置",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "配置文件", Required: true},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, _, err := app.LoadConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.Root().Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}

func serve(ctx context.Context, path string) error {
	cfg := app.DefaultConfig()
	var src xconf.Config
	if path != "" {
		var err error
		if cfg, src, err = app.LoadConfig(path); err != nil {
			return err
		}
	}

	logger, closeLog, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var extra []xrun.Service
	if src != nil {
		w, err := xconf.NewWatcher(src, a.ApplyReload, xconf.WithWatchLogger(logger))
		if err != nil {
			return err
		}
		extra = append(extra, xrun.Named("config-watcher", w.Run))
	}
	return a.Run(ctx, extra...)
}

func buildLogger(cfg app.LogConfig) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().SetLevel(cfg.Level).SetFormat(cfg.Format).SetOutput(os.Stderr)
	if cfg.File != "" {
		b = b.SetRotation(cfg.File, xlog.RotateMaxSizeMB(cfg.MaxSizeMB), xlog.RotateCompress(true))
	}
	return b.Build()
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", &usageError{msg: fmt.Sprintf("%s 需要一个参数 <%s>", cmd.Name, name)}
	}
	return cmd.Args().First(), nil
}
