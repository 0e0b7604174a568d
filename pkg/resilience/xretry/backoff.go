package xretry

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultInitialDelay = 100 * time.Millisecond
	defaultMaxDelay     = 2 * time.Second
	defaultMultiplier   = 2.0
	defaultJitter       = 0.1
)

// ExponentialBackoff 第 n 次失败后等待 initial * multiplier^(n-1)，上限 max。
// jitter > 0 时在 [1-jitter, 1+jitter] 范围内随机缩放。
type ExponentialBackoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
}

// ExponentialBackoffOption 指数退避选项。
type ExponentialBackoffOption func(*ExponentialBackoff)

// WithInitialDelay 首次等待时间，d <= 0 时忽略。
func WithInitialDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.initial = d
		}
	}
}

// WithMaxDelay 等待上限，d <= 0 时忽略。
func WithMaxDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.max = d
		}
	}
}

// WithMultiplier 增长倍数，小于 1 时忽略。
func WithMultiplier(m float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if m >= 1 {
			b.multiplier = m
		}
	}
}

// WithJitter 抖动比例，裁剪到 [0, 1]。传 0 得到确定的等待序列。
func WithJitter(j float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitter = min(max(j, 0), 1)
	}
}

// NewExponentialBackoff 默认 100ms 起、2s 封顶、倍数 2、抖动 10%。
func NewExponentialBackoff(opts ...ExponentialBackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initial:    defaultInitialDelay,
		max:        defaultMaxDelay,
		multiplier: defaultMultiplier,
		jitter:     defaultJitter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.max = max(b.max, b.initial)
	return b
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	exp := float64(max(attempt, 1) - 1)
	delay := float64(b.initial) * math.Pow(b.multiplier, exp)
	if b.jitter > 0 {
		delay *= 1 + b.jitter*(2*rand.Float64()-1)
	}
	// 溢出得到 +Inf 或 NaN，都按上限处理
	if math.IsNaN(delay) || delay >= float64(b.max) {
		return b.max
	}
	return time.Duration(max(delay, 0))
}

// NoBackoff 不等待，用于测试或冲突概率极低的场景。
type NoBackoff struct{}

// NewNoBackoff 创建不等待的退避策略。
func NewNoBackoff() NoBackoff { return NoBackoff{} }

func (NoBackoff) NextDelay(int) time.Duration { return 0 }

var (
	_ BackoffPolicy = (*ExponentialBackoff)(nil)
	_ BackoffPolicy = NoBackoff{}
)
