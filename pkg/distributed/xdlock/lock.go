package xdlock

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrLockHeld 锁被其他持有者占用，TryLock 返回 (nil, nil) 而不是该错误。
	ErrLockHeld = errors.New("xdlock: lock is held by another owner")

	// ErrLockFailed Lock 重试耗尽。
	ErrLockFailed = errors.New("xdlock: failed to acquire lock")

	ErrLockExpired   = errors.New("xdlock: lock expired or stolen")
	ErrExtendFailed  = errors.New("xdlock: failed to extend lock")
	ErrNotLocked     = errors.New("xdlock: not locked")
	ErrNilClient     = errors.New("xdlock: client is nil")
	ErrFactoryClosed = errors.New("xdlock: factory is closed")
	ErrEmptyKey      = errors.New("xdlock: key must not be empty")
)

// MutexOption 单次加锁的选项。
type MutexOption func(*mutexOptions)

type mutexOptions struct {
	prefix     string
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

// 默认值与 redsync 一致，前缀除外。
func newMutexOptions(opts []MutexOption) mutexOptions {
	o := mutexOptions{
		prefix:     "lock:",
		expiry:     8 * time.Second,
		tries:      32,
		retryDelay: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithKeyPrefix 完整 key 为 prefix + key，默认 "lock:"。
func WithKeyPrefix(prefix string) MutexOption {
	return func(o *mutexOptions) { o.prefix = prefix }
}

// WithExpiry 锁的存活时间，默认 8s。任务可能超过该时间时需要 Extend。
func WithExpiry(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d > 0 {
			o.expiry = d
		}
	}
}

// WithRetry 设置 Lock 的尝试次数与间隔，非正值保留默认（32 次、200ms）。TryLock 只尝试一次。
func WithRetry(tries int, delay time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if tries > 0 {
			o.tries = tries
		}
		if delay > 0 {
			o.retryDelay = delay
		}
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}
