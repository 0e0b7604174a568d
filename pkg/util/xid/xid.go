package xid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sony/sonyflake/v2"

	"github.com/omeyang/xtrack/pkg/resilience/xretry"
)

var (
	// ErrClockBackward 时钟回拨持续超过重试窗口
	ErrClockBackward = errors.New("xid: clock moved backwards")

	// ErrOverTimeLimit sonyflake 39 位时间分量耗尽，不可恢复。
	ErrOverTimeLimit = errors.New("xid: time component overflow")

	// ErrNoPrivateAddress 所有机器 ID 策略均失败且没有私有 IPv4 地址。
	ErrNoPrivateAddress = errors.New("xid: no private IP address found")

	ErrInvalidConfig = errors.New("xid: invalid config")
	ErrNilGenerator  = errors.New("xid: nil generator")
)

// sonyflake 时间精度为 10ms，回拨通常在几十毫秒内恢复。
const (
	defaultClockRetries  = 50
	defaultClockInterval = 10 * time.Millisecond
)

type options struct {
	machineID     func() (uint16, error)
	clockRetries  int
	clockInterval time.Duration
}

// Option NewGenerator 选项
type Option func(*options)

// WithMachineID 机器 ID 来源，默认 [DefaultMachineID]。
func WithMachineID(fn func() (uint16, error)) Option {
	return func(o *options) { o.machineID = fn }
}

// WithClockRetry 时钟回拨时最多再尝试 retries 次，每次间隔 interval。retries 为 0 表示不重试。
func WithClockRetry(retries int, interval time.Duration) Option {
	return func(o *options) {
		o.clockRetries = retries
		o.clockInterval = interval
	}
}

// Generator 记录主键生成器，并发安全。
type Generator struct {
	next    func() (int64, error)
	retryer *xretry.Retryer
}

// NewGenerator 创建生成器，机器 ID 获取失败时返回错误。
func NewGenerator(opts ...Option) (*Generator, error) {
	o := options{
		machineID:     DefaultMachineID,
		clockRetries:  defaultClockRetries,
		clockInterval: defaultClockInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.machineID == nil {
		o.machineID = DefaultMachineID
	}
	if o.clockRetries < 0 || o.clockInterval < 0 {
		return nil, fmt.Errorf("%w: clock retry %d/%s", ErrInvalidConfig, o.clockRetries, o.clockInterval)
	}

	sf, err := sonyflake.New(sonyflake.Settings{
		MachineID: func() (int, error) {
			id, err := o.machineID()
			return int(id), err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return newGenerator(sf.NextID, o), nil
}

func newGenerator(next func() (int64, error), o options) *Generator {
	var backoff xretry.BackoffPolicy = xretry.NewNoBackoff()
	if o.clockInterval > 0 {
		backoff = xretry.NewExponentialBackoff(
			xretry.WithInitialDelay(o.clockInterval),
			xretry.WithMaxDelay(o.clockInterval),
			xretry.WithMultiplier(1),
			xretry.WithJitter(0),
		)
	}
	return &Generator{
		next: next,
		retryer: xretry.NewRetryer(
			xretry.WithRetryPolicy(xretry.NewRetryOn(o.clockRetries+1, func(err error) bool {
				return !errors.Is(err, sonyflake.ErrOverTimeLimit)
			})),
			xretry.WithBackoffPolicy(backoff),
		),
	}
}

// Next 生成新 ID。时钟回拨时按 WithClockRetry 等待，仍失败返回 [ErrClockBackward]。
func (g *Generator) Next(ctx context.Context) (int64, error) {
	if g == nil || g.next == nil {
		return 0, ErrNilGenerator
	}
	if ctx == nil {
		return 0, xretry.ErrNilContext
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id, err := xretry.DoWithResult(ctx, g.retryer, func(context.Context) (int64, error) {
		return g.next()
	})
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, sonyflake.ErrOverTimeLimit):
		return 0, fmt.Errorf("%w: %w", ErrOverTimeLimit, err)
	case ctx.Err() != nil:
		return 0, err
	default:
		return 0, fmt.Errorf("%w: %w", ErrClockBackward, err)
	}
}

// NewString 生成 base36 编码的 ID（12 到 13 个字符），用作记录主键。
func (g *Generator) NewString(ctx context.Context) (string, error) {
	id, err := g.Next(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 36), nil
}

var defaultGenerator = sync.OnceValues(func() (*Generator, error) {
	return NewGenerator()
})

// Default 惰性创建的进程级生成器，初始化失败时每次返回相同错误。
func Default() (*Generator, error) {
	return defaultGenerator()
}
