// xtrackd 是运单号分配服务的进程入口与运维命令行。
//
// 用法:
//
//	xtrackd [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config      配置文件路径（YAML 或 JSON，可选）
//	    --listen      HTTP 监听地址，覆盖 server.addr
//	    --redis-addr  Redis 地址，覆盖 redis.addr
//	    --mongo-uri   MongoDB 连接串，覆盖 mongo.uri
//	    --log-level   日志级别，覆盖 log.level
//
// 命令:
//
//	serve          启动 HTTP 服务，周期预热快照，监视配置文件调整日志级别
//	generate       分配一个运单号
//	search         按条件搜索
//	list           分页列出
//	invalidate     删除派生缓存
//
// 退出码:
//
//	0: 成功
//	1: 运行失败（依赖不可用、分配耗尽等）
//	2: 参数或配置错误
//
// 示例:
//
//	xtrackd -c /etc/xtrack/config.yaml serve
//	xtrackd generate --origin MY --destination ID --weight 1.234 \
//	    --created-at 2018-11-20T19:29:32+08:00 \
//	    --customer-id de619854-b59b-425e-9db4-943979e1bd49 \
//	    --customer-name "RedBox Logistics" --customer-slug redbox-logistics
//	xtrackd list --page 0 --size 20
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// createApp 创建 CLI 应用。
func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xtrackd",
		Usage:     "运单号分配服务",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "配置文件路径",
				Sources: cli.EnvVars("XTRACK_CONFIG"),
			},
			&cli.StringFlag{
				Name:    flagListen,
				Usage:   "HTTP 监听地址",
				Sources: cli.EnvVars("XTRACK_LISTEN"),
			},
			&cli.StringFlag{
				Name:    flagRedisAddr,
				Usage:   "Redis 地址",
				Sources: cli.EnvVars("XTRACK_REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    flagMongoURI,
				Usage:   "MongoDB 连接串",
				Sources: cli.EnvVars("XTRACK_MONGO_URI"),
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Usage:   "日志级别 (debug/info/warn/error)",
				Sources: cli.EnvVars("XTRACK_LOG_LEVEL"),
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 由 run() 统一映射退出码，urfave/cli 不直接调用 os.Exit
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)
	if err := app.Run(ctx, args); err != nil {
		return exitCode(err, stderr)
	}
	return 0
}

// exitCode 将命令错误映射为退出码并输出错误信息。
func exitCode(err error, stderr io.Writer) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		// flag 解析器已输出详情
		return 2
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return 1
}
