package xtracking

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/omeyang/xtrack/pkg/observability/xlog"
	"github.com/omeyang/xtrack/pkg/observability/xmetrics"
	"github.com/omeyang/xtrack/pkg/resilience/xretry"
	"github.com/omeyang/xtrack/pkg/util/xid"
)

// =============================================================================
// 默认值
// =============================================================================

const (
	// DefaultReservationTTL tracking:<id> 条目的 TTL。
	DefaultReservationTTL = 24 * time.Hour

	// DefaultSnapshotTTL 全量快照 TTL。
	DefaultSnapshotTTL = 24 * time.Hour

	// DefaultSearchTTL 搜索结果缓存 TTL。
	DefaultSearchTTL = 30 * time.Minute

	// DefaultMaxAttempts 碰撞时的最大尝试次数（含首次）。
	DefaultMaxAttempts = 5

	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 2 * time.Second
	DefaultBackoffMultiplier = 2.0

	// DefaultSearchLimit 空条件搜索返回的记录数。
	DefaultSearchLimit = 50

	// DefaultRefreshConcurrency 搜索回源后并发刷新 tracking:<id> 的上限。
	DefaultRefreshConcurrency = 8

	// MaxPageSize 单页最大记录数。
	MaxPageSize = 100
)

// =============================================================================
// Config
// =============================================================================

// Config 运单服务配置，零值字段使用默认值。
type Config struct {
	ReservationTTL     time.Duration `koanf:"reservation_ttl"`
	SnapshotTTL        time.Duration `koanf:"snapshot_ttl"`
	SearchTTL          time.Duration `koanf:"search_ttl"`
	MaxAttempts        int           `koanf:"max_attempts"`
	InitialBackoff     time.Duration `koanf:"initial_backoff"`
	MaxBackoff         time.Duration `koanf:"max_backoff"`
	BackoffMultiplier  float64       `koanf:"backoff_multiplier"`
	SearchLimit        int64         `koanf:"search_limit"`
	RefreshConcurrency int           `koanf:"refresh_concurrency"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		ReservationTTL:     DefaultReservationTTL,
		SnapshotTTL:        DefaultSnapshotTTL,
		SearchTTL:          DefaultSearchTTL,
		MaxAttempts:        DefaultMaxAttempts,
		InitialBackoff:     DefaultInitialBackoff,
		MaxBackoff:         DefaultMaxBackoff,
		BackoffMultiplier:  DefaultBackoffMultiplier,
		SearchLimit:        DefaultSearchLimit,
		RefreshConcurrency: DefaultRefreshConcurrency,
	}
}

// withDefaults 用默认值填充零值字段。
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReservationTTL == 0 {
		c.ReservationTTL = d.ReservationTTL
	}
	if c.SnapshotTTL == 0 {
		c.SnapshotTTL = d.SnapshotTTL
	}
	if c.SearchTTL == 0 {
		c.SearchTTL = d.SearchTTL
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.SearchLimit == 0 {
		c.SearchLimit = d.SearchLimit
	}
	if c.RefreshConcurrency == 0 {
		c.RefreshConcurrency = d.RefreshConcurrency
	}
	return c
}

// Validate 校验配置。零值字段视为默认值。
func (c Config) Validate() error {
	c = c.withDefaults()
	switch {
	case c.ReservationTTL < 0, c.SnapshotTTL < 0, c.SearchTTL < 0:
		return fmt.Errorf("%w: negative ttl", ErrInvalidConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts %d", ErrInvalidConfig, c.MaxAttempts)
	case c.InitialBackoff < 0 || c.MaxBackoff < c.InitialBackoff:
		return fmt.Errorf("%w: backoff [%s, %s]", ErrInvalidConfig, c.InitialBackoff, c.MaxBackoff)
	case c.BackoffMultiplier < 1:
		return fmt.Errorf("%w: backoff multiplier %v", ErrInvalidConfig, c.BackoffMultiplier)
	case c.SearchLimit < 1:
		return fmt.Errorf("%w: search limit %d", ErrInvalidConfig, c.SearchLimit)
	case c.RefreshConcurrency < 1:
		return fmt.Errorf("%w: refresh concurrency %d", ErrInvalidConfig, c.RefreshConcurrency)
	}
	return nil
}

// =============================================================================
// Options
// =============================================================================

// IDGenerator 内部记录主键生成器，*xid.Generator 满足此接口。
type IDGenerator interface {
	NewString(ctx context.Context) (string, error)
}

// Options 引擎与一致性层的可选配置。
type Options struct {
	Config Config

	// Logger 默认 xlog.Default()。
	Logger xlog.Logger

	// Observer 默认 xmetrics.NoopObserver{}。
	Observer xmetrics.Observer

	// Clock 默认 time.Now。
	Clock func() time.Time

	// Entropy 候选号随机源，默认 crypto/rand.Reader，必须并发安全。
	Entropy io.Reader

	// Format 候选号生成策略，默认 NewFormatPolicy()。
	Format *FormatPolicy

	// IDs 记录主键生成器，默认 xid.Default()。
	IDs IDGenerator

	// Backoff 碰撞重试退避策略，默认按 Config 构造指数退避。
	Backoff xretry.BackoffPolicy
}

// Option 配置函数。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Config:   DefaultConfig(),
		Observer: xmetrics.NoopObserver{},
		Clock:    time.Now,
	}
}

// applyOptions 应用 Option 并补齐依赖默认值。
func applyOptions(opts []Option) (*Options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if err := o.Config.Validate(); err != nil {
		return nil, err
	}
	o.Config = o.Config.withDefaults()
	if o.Logger == nil {
		o.Logger = xlog.Default()
	}
	if o.Backoff == nil {
		o.Backoff = xretry.NewExponentialBackoff(
			xretry.WithInitialDelay(o.Config.InitialBackoff),
			xretry.WithMaxDelay(o.Config.MaxBackoff),
			xretry.WithMultiplier(o.Config.BackoffMultiplier),
			xretry.WithJitter(0),
		)
	}
	return o, nil
}

// engineDefaults 补齐仅引擎需要的依赖。
func (o *Options) engineDefaults() error {
	if o.Format == nil {
		f, err := NewFormatPolicy()
		if err != nil {
			return err
		}
		o.Format = f
	}
	if o.IDs == nil {
		g, err := xid.Default()
		if err != nil {
			return fmt.Errorf("xtracking: id generator: %w", err)
		}
		o.IDs = g
	}
	return nil
}

// WithConfig 设置配置。
func WithConfig(cfg Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithLogger 设置日志记录器。
func WithLogger(logger xlog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithObserver 设置可观测性接口。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *Options) {
		if observer != nil {
			o.Observer = observer
		}
	}
}

// WithClock 设置时钟，测试用。
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		if clock != nil {
			o.Clock = clock
		}
	}
}

// WithEntropy 设置候选号随机源。
func WithEntropy(r io.Reader) Option {
	return func(o *Options) {
		if r != nil {
			o.Entropy = r
		}
	}
}

// WithFormat 设置候选号生成策略。
func WithFormat(p *FormatPolicy) Option {
	return func(o *Options) {
		if p != nil {
			o.Format = p
		}
	}
}

// WithIDGenerator 设置记录主键生成器。
func WithIDGenerator(g IDGenerator) Option {
	return func(o *Options) {
		if g != nil {
			o.IDs = g
		}
	}
}

// WithBackoff 覆盖碰撞重试退避策略，测试中通常传入 xretry.NewNoBackoff()。
func WithBackoff(b xretry.BackoffPolicy) Option {
	return func(o *Options) {
		if b != nil {
			o.Backoff = b
		}
	}
}
