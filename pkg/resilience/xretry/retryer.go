package xretry

import (
	"context"
	"math"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Retryer 组合 RetryPolicy 与 BackoffPolicy。创建后只读，可并发使用。
type Retryer struct {
	policy  RetryPolicy
	backoff BackoffPolicy
	onRetry func(attempt int, err error)
}

// RetryerOption Retryer 选项。
type RetryerOption func(*Retryer)

// WithRetryPolicy 设置重试策略，nil 被忽略。
func WithRetryPolicy(p RetryPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.policy = p
		}
	}
}

// WithBackoffPolicy 设置退避策略，nil 被忽略。
func WithBackoffPolicy(p BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.backoff = p
		}
	}
}

// WithOnRetry 每次决定重试前回调，attempt 为已失败次数。
func WithOnRetry(f func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.onRetry = f
		}
	}
}

// NewRetryer 默认最多尝试 3 次，重试所有 IsRetryable 的错误，指数退避。
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Do 执行 fn 直到成功、策略拒绝重试或 ctx 结束，返回最后一次的错误。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilFunc
	}
	_, err := DoWithResult(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult 与 Do 相同，并返回成功那次的结果。
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	switch {
	case r == nil:
		return zero, ErrNilRetryer
	case ctx == nil:
		return zero, ErrNilContext
	case fn == nil:
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](r.options(ctx)...).Do(func() (T, error) {
		return fn(ctx)
	})
}

func (r *Retryer) options(ctx context.Context) []retry.Option {
	policy, backoff := r.policy, r.backoff
	if policy == nil {
		policy = NewRetryOn(3, nil)
	}
	if backoff == nil {
		backoff = NewExponentialBackoff()
	}

	// failures 只在单次调用内累加
	failures := 0
	opts := []retry.Option{
		retry.Context(ctx),
		// Attempts(0) 在 retry-go 中表示无限重试
		retry.Attempts(uint(max(policy.MaxAttempts(), 1))),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			failures++
			return retry.IsRecoverable(err) && policy.ShouldRetry(ctx, failures, err)
		}),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return backoff.NextDelay(clampInt(n))
		}),
	}
	if r.onRetry != nil {
		// retry-go 的 OnRetry 从 0 计数
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			r.onRetry(clampInt(n)+1, err)
		}))
	}
	return opts
}

func clampInt(n uint) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}
