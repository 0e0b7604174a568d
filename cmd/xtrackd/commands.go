package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xtrack/internal/api"
	"github.com/omeyang/xtrack/pkg/business/xtracking"
	"github.com/omeyang/xtrack/pkg/config/xconf"
	"github.com/omeyang/xtrack/pkg/lifecycle/xrun"
	"github.com/omeyang/xtrack/pkg/observability/xlog"
)

// 全局 flag 名称
const (
	flagConfig    = "config"
	flagListen    = "listen"
	flagRedisAddr = "redis-addr"
	flagMongoURI  = "mongo-uri"
	flagLogLevel  = "log-level"
)

// exitError 携带指定退出码，消息已由命令自行输出。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 参数或配置错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// isCLIUsageError 判断 err 是否为 urfave/cli 产生的参数错误（未知 flag、flag 值非法、未知命令等）。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"flag provided but not defined",
		"invalid value",
		"No help topic for",
		"Required flag",
		"Required flags",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func createCommands() []*cli.Command {
	return []*cli.Command{
		createServeCommand(),
		createGenerateCommand(),
		createSearchCommand(),
		createListCommand(),
		createInvalidateCommand(),
	}
}

// withApp 加载配置并初始化依赖后执行 fn，结束时释放依赖。
func withApp(ctx context.Context, cmd *cli.Command, fn func(ctx context.Context, a *app, src xconf.Config) error) error {
	cfg, src, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		// ctx 可能已因信号取消，释放资源使用独立 context
		_ = a.close(context.WithoutCancel(ctx))
	}()
	return fn(ctx, a, src)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// serve
// =============================================================================

func createServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "启动 HTTP 服务",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, serve)
		},
	}
}

func serve(ctx context.Context, a *app, src xconf.Config) error {
	handler := api.NewHandler(a.svc, map[string]api.HealthChecker{
		"redis": a.cache,
		"mongo": a.mongo,
	})
	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           api.NewRouter(handler, a.logger, api.WithCORS(a.cfg.Server.CORS)),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	services := []xrun.Service{
		{Name: "http", Run: xrun.HTTPServer(server, a.cfg.Server.ShutdownTimeout)},
	}
	if interval := a.cfg.Server.SnapshotInterval; interval > 0 {
		warmer := &snapshotWarmer{
			svc:      a.svc,
			locks:    a.locks,
			prefix:   a.cfg.Redis.KeyPrefix + "lock:",
			interval: interval,
			logger:   a.logger,
		}
		services = append(services, xrun.Service{
			Name: "snapshot-warmer",
			Run:  xrun.Ticker(interval, true, warmer.tick),
		})
	}
	if src.Path() != "" {
		w, err := xconf.Watch(src, reloadLogLevel(a.logger))
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		services = append(services, xrun.Service{Name: "config-watch", Run: w.Run})
	}

	a.logger.Info(ctx, "xtrackd listening",
		slog.String("addr", a.cfg.Server.Addr),
		slog.String("version", Version))

	err := xrun.Run(ctx, []xrun.Option{
		xrun.WithLogger(a.logger),
		xrun.WithName(serviceName),
	}, services...)
	if err != nil && !errors.Is(err, xrun.ErrSignal) && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info(context.WithoutCancel(ctx), "xtrackd stopped")
	return nil
}

// reloadLogLevel 配置文件变更后应用新的 log.level，其他配置项需重启生效。
func reloadLogLevel(logger xlog.LoggerWithLevel) xconf.WatchCallback {
	return func(cfg xconf.Config, err error) {
		ctx := context.Background()
		if err != nil {
			logger.Warn(ctx, "reload config failed", xlog.Err(err))
			return
		}
		raw := cfg.Client().String("log.level")
		if raw == "" {
			return
		}
		level, err := xlog.ParseLevel(raw)
		if err != nil {
			logger.Warn(ctx, "ignore invalid log level", slog.String("level", raw), xlog.Err(err))
			return
		}
		if level != logger.GetLevel() {
			logger.SetLevel(level)
			logger.Info(ctx, "log level changed", slog.String("level", level.String()))
		}
	}
}

// =============================================================================
// generate
// =============================================================================

func createGenerateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "分配一个运单号并输出记录",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "origin", Usage: "始发国 ISO 3166-1 alpha-2 代码", Required: true},
			&cli.StringFlag{Name: "destination", Usage: "目的国 ISO 3166-1 alpha-2 代码", Required: true},
			&cli.StringFlag{Name: "weight", Usage: "重量（千克，最多 3 位小数）", Required: true},
			&cli.StringFlag{Name: "created-at", Usage: "订单创建时间（RFC 3339）", Required: true},
			&cli.StringFlag{Name: "customer-id", Usage: "客户 UUID", Required: true},
			&cli.StringFlag{Name: "customer-name", Usage: "客户名称", Required: true},
			&cli.StringFlag{Name: "customer-slug", Usage: "客户 slug（kebab-case）", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			in, err := generationInput(cmd)
			if err != nil {
				return err
			}
			return withApp(ctx, cmd, func(ctx context.Context, a *app, _ xconf.Config) error {
				rec, err := a.svc.Allocate(ctx, in)
				if err != nil {
					return err
				}
				return writeJSON(cmd.Root().Writer, rec.Info())
			})
		},
	}
}

// generationInput 与 HTTP 接口使用同一套校验规则。
func generationInput(cmd *cli.Command) (xtracking.GenerationInput, error) {
	req := api.NextRequest{
		OriginCountryID:      cmd.String("origin"),
		DestinationCountryID: cmd.String("destination"),
		Weight:               cmd.String("weight"),
		CreatedAt:            cmd.String("created-at"),
		CustomerID:           cmd.String("customer-id"),
		CustomerName:         cmd.String("customer-name"),
		CustomerSlug:         cmd.String("customer-slug"),
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return xtracking.GenerationInput{}, usagef("invalid input: %v", err)
	}
	in, err := req.ToInput()
	if err != nil {
		return xtracking.GenerationInput{}, usagef("invalid input: %v", err)
	}
	return in, nil
}

// =============================================================================
// search / list / invalidate
// =============================================================================

func createSearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "按条件搜索运单记录",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tracking-number", Usage: "运单号（精确匹配，优先级最高）"},
			&cli.StringFlag{Name: "customer-name", Usage: "客户名称（不区分大小写的子串）"},
			&cli.StringFlag{Name: "customer-slug", Usage: "客户 slug（不区分大小写的子串）"},
			&cli.StringFlag{Name: "origin", Usage: "始发国代码"},
			&cli.StringFlag{Name: "destination", Usage: "目的国代码"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			criteria := xtracking.Criteria{
				TrackingNumber: cmd.String("tracking-number"),
				CustomerName:   cmd.String("customer-name"),
				CustomerSlug:   cmd.String("customer-slug"),
				Origin:         cmd.String("origin"),
				Destination:    cmd.String("destination"),
			}
			return withApp(ctx, cmd, func(ctx context.Context, a *app, _ xconf.Config) error {
				rs, err := a.svc.Search(ctx, criteria)
				if err != nil {
					return err
				}
				return writeJSON(cmd.Root().Writer, rs)
			})
		},
	}
}

func createListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "分页列出运单记录（按创建时间降序）",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "page", Aliases: []string{"p"}, Usage: "页码，从 0 开始", Value: 0},
			&cli.Int64Flag{Name: "size", Aliases: []string{"n"}, Usage: "每页条数，1 到 100", Value: 10},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			page, size := cmd.Int64("page"), cmd.Int64("size")
			if page < 0 || size < 1 || size > xtracking.MaxPageSize {
				return usagef("page must be >= 0 and size must be between 1 and %d", xtracking.MaxPageSize)
			}
			return withApp(ctx, cmd, func(ctx context.Context, a *app, _ xconf.Config) error {
				p, err := a.svc.List(ctx, page, size)
				if err != nil {
					return err
				}
				return writeJSON(cmd.Root().Writer, p)
			})
		},
	}
}

func createInvalidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "invalidate",
		Usage: "删除快照缓存与全部搜索缓存",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app, _ xconf.Config) error {
				if err := a.svc.Invalidate(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.Root().Writer, "derived caches invalidated")
				return err
			})
		},
	}
}
