package xretry

import (
	"context"
	"time"
)

// RetryPolicy 决定一次失败后是否继续尝试。
type RetryPolicy interface {
	// MaxAttempts 总尝试次数上限，包含首次。
	MaxAttempts() int

	// ShouldRetry attempt 为已失败次数，从 1 开始。
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy 决定第 attempt 次失败后等待多久，attempt 从 1 开始。
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}

// MatchPolicy 只重试 match 返回 true 的错误，其余错误立即返回。
type MatchPolicy struct {
	maxAttempts int
	match       func(error) bool
}

// NewRetryOn 创建按错误匹配的重试策略。
// maxAttempts 小于 1 时按 1 处理；match 为 nil 时按 IsRetryable 判定。
func NewRetryOn(maxAttempts int, match func(error) bool) *MatchPolicy {
	if match == nil {
		match = IsRetryable
	}
	return &MatchPolicy{maxAttempts: max(maxAttempts, 1), match: match}
}

func (p *MatchPolicy) MaxAttempts() int { return p.maxAttempts }

func (p *MatchPolicy) ShouldRetry(ctx context.Context, attempt int, err error) bool {
	switch {
	case ctx.Err() != nil, attempt >= p.maxAttempts:
		return false
	case !IsRetryable(err):
		return false
	default:
		return p.match(err)
	}
}

var _ RetryPolicy = (*MatchPolicy)(nil)
