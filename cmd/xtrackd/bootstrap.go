package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xtrack/internal/trackstore"
	"github.com/omeyang/xtrack/pkg/business/xtracking"
	"github.com/omeyang/xtrack/pkg/distributed/xdlock"
	"github.com/omeyang/xtrack/pkg/observability/xlog"
	"github.com/omeyang/xtrack/pkg/observability/xmetrics"
	"github.com/omeyang/xtrack/pkg/observability/xrotate"
	"github.com/omeyang/xtrack/pkg/resilience/xbreaker"
	"github.com/omeyang/xtrack/pkg/storage/xcache"
	"github.com/omeyang/xtrack/pkg/storage/xmongo"
	"github.com/omeyang/xtrack/pkg/util/xid"
)

const serviceName = "xtrackd"

// app 持有一次命令执行所需的全部依赖，close 按创建的逆序释放。
type app struct {
	cfg    Config
	logger xlog.LoggerWithLevel
	cache  xcache.Redis
	mongo  xmongo.Mongo
	locks  xdlock.Factory
	store  *trackstore.Store
	svc    *xtracking.Service

	closers []func(ctx context.Context) error
}

func newLogger(cfg LogConfig) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetLevelString(cfg.Level).
		SetFormat(cfg.Format).
		SetEnrich(true).
		SetService(serviceName, Version).
		SetAddSource(cfg.AddSource).
		SetOnError(func(err error) {
			fmt.Fprintf(os.Stderr, "xtrackd: log write failed: %v\n", err)
		})
	if len(cfg.Redact) > 0 {
		b = b.SetReplaceAttr(redactor(cfg.Redact))
	}
	if cfg.File != "" {
		b = b.SetRotation(cfg.File,
			xrotate.WithMaxSize(cfg.MaxSizeMB),
			xrotate.WithMaxBackups(cfg.MaxBackups),
			xrotate.WithMaxAge(cfg.MaxAgeDays),
			xrotate.WithCompress(cfg.Compress),
		)
	}
	return b.Build()
}

// redactor 屏蔽指定字段的值，分组内的同名字段同样处理。
func redactor(keys []string) xlog.ReplaceAttrFunc {
	masked := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		masked[k] = struct{}{}
	}
	return func(_ []string, a slog.Attr) slog.Attr {
		if _, ok := masked[a.Key]; ok {
			return slog.String(a.Key, "***")
		}
		return a
	}
}

func newCache(cfg RedisConfig, logger xlog.Logger) (xcache.Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	breaker := xbreaker.NewBreaker(serviceName+"-redis",
		xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(cfg.BreakerFailures)),
		xbreaker.WithSuccessPolicy(xbreaker.IgnoreContextErrors{}),
		xbreaker.WithTimeout(cfg.BreakerTimeout),
		xbreaker.WithOnStateChange(func(name string, from, to xbreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				xlog.Component(name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		}),
	)
	cache, err := xcache.NewRedis(client,
		xcache.WithKeyPrefix(cfg.KeyPrefix),
		xcache.WithBreaker(breaker),
	)
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}
	return cache, nil
}

func newMongo(ctx context.Context, cfg MongoConfig, observer xmetrics.Observer) (xmongo.Mongo, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAppName(serviceName))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	m, err := xmongo.New(client,
		xmongo.WithQueryTimeout(cfg.QueryTimeout),
		xmongo.WithWriteTimeout(cfg.WriteTimeout),
		xmongo.WithObserver(observer),
	)
	if err != nil {
		return nil, errors.Join(err, client.Disconnect(ctx))
	}
	return m, nil
}

// newApp 按依赖顺序初始化 logger、观测、Redis、MongoDB 与服务。
// 任一步失败时释放已创建的资源。
func newApp(ctx context.Context, cfg Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.close(ctx)
		}
	}()

	logger, logCleanup, err := newLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	a.logger = logger
	xlog.SetDefault(logger)
	a.closers = append(a.closers, func(context.Context) error { return logCleanup() })

	observer, err := xmetrics.NewOTelObserver()
	if err != nil {
		return nil, fmt.Errorf("build observer: %w", err)
	}

	a.cache, err = newCache(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("build cache: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.cache.Close() })

	a.locks, err = xdlock.NewRedisFactory(a.cache.Client())
	if err != nil {
		return nil, fmt.Errorf("build lock factory: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.locks.Close() })

	a.mongo, err = newMongo(ctx, cfg.Mongo, observer)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.mongo.Close)

	a.store, err = trackstore.New(a.mongo, cfg.Mongo.Database, cfg.Mongo.Collection)
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}
	if err := a.store.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	ids, err := xid.Default()
	if err != nil {
		return nil, fmt.Errorf("build id generator: %w", err)
	}

	a.svc, err = xtracking.NewService(a.cache, a.store,
		xtracking.WithConfig(cfg.Tracking),
		xtracking.WithLogger(logger),
		xtracking.WithObserver(observer),
		xtracking.WithIDGenerator(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("build service: %w", err)
	}
	return a, nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
