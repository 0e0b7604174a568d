package xdlock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// LockHandle 一次成功的锁获取。每次获取生成唯一值，只有持有该值的 handle 能释放或续期。
type LockHandle interface {
	// Unlock 释放锁，锁已过期或被覆盖时返回 ErrNotLocked。
	Unlock(ctx context.Context) error

	// Extend 按获取时的 Expiry 续期。
	Extend(ctx context.Context) error

	// Key 返回含前缀的完整 key。
	Key() string
}

// Factory 锁工厂。
type Factory interface {
	// TryLock 非阻塞获取锁，锁被占用时返回 (nil, nil)。
	TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error)

	// Lock 按重试策略阻塞获取锁，直到成功、重试耗尽或 ctx 结束。
	Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error)

	// Health 对所有节点执行 PING。
	Health(ctx context.Context) error

	// Close 之后不能再获取新锁，已持有的 handle 仍可释放。不关闭 Redis 客户端。
	Close() error
}

type redisFactory struct {
	clients []redis.UniversalClient
	rs      *redsync.Redsync
	closed  atomic.Bool
}

// NewRedisFactory 创建 Redis 锁工厂。
func NewRedisFactory(clients ...redis.UniversalClient) (Factory, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, client := range clients {
		if client == nil {
			return nil, fmt.Errorf("%w: index %s", ErrNilClient, strconv.Itoa(i))
		}
		pools[i] = goredis.NewPool(client)
	}
	return &redisFactory{clients: clients, rs: redsync.New(pools...)}, nil
}

func (f *redisFactory) TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	mutex, err := f.newMutex(key, opts)
	if err != nil {
		return nil, err
	}
	if err := mutex.TryLockContext(ctx); err != nil {
		err = wrapRedisError(err)
		if errors.Is(err, ErrLockHeld) {
			return nil, nil
		}
		return nil, err
	}
	return &redisLockHandle{mutex: mutex}, nil
}

func (f *redisFactory) Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	mutex, err := f.newMutex(key, opts)
	if err != nil {
		return nil, err
	}
	if err := mutex.LockContext(ctx); err != nil {
		// redsync 不透传 context 错误
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, wrapRedisError(err)
	}
	return &redisLockHandle{mutex: mutex}, nil
}

func (f *redisFactory) newMutex(key string, opts []MutexOption) (*redsync.Mutex, error) {
	if f.closed.Load() {
		return nil, ErrFactoryClosed
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	o := newMutexOptions(opts)
	return f.rs.NewMutex(o.prefix+key,
		redsync.WithExpiry(o.expiry),
		redsync.WithTries(o.tries),
		redsync.WithRetryDelay(o.retryDelay),
	), nil
}

func (f *redisFactory) Health(ctx context.Context) error {
	if f.closed.Load() {
		return ErrFactoryClosed
	}
	for _, client := range f.clients {
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (f *redisFactory) Close() error {
	f.closed.Store(true)
	return nil
}

type redisLockHandle struct {
	mutex *redsync.Mutex
}

func (h *redisLockHandle) Unlock(ctx context.Context) error {
	return handleResult(h.mutex.UnlockContext(ctx))
}

func (h *redisLockHandle) Extend(ctx context.Context) error {
	return handleResult(h.mutex.ExtendContext(ctx))
}

func (h *redisLockHandle) Key() string {
	return h.mutex.Name()
}

// handleResult 锁已过期、已被他人持有或 ok 为 false 都表示所有权已丢失。
func handleResult(ok bool, err error) error {
	if err != nil {
		err = wrapRedisError(err)
		if errors.Is(err, ErrLockExpired) || errors.Is(err, ErrLockHeld) {
			return ErrNotLocked
		}
		return err
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

// wrapRedisError 将 redsync 错误转换为 xdlock 错误，保留原始错误链。
func wrapRedisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return fmt.Errorf("%w: %w", ErrLockHeld, err)
	}
	switch {
	case errors.Is(err, redsync.ErrFailed):
		return fmt.Errorf("%w: %w", ErrLockFailed, err)
	case errors.Is(err, redsync.ErrExtendFailed):
		return fmt.Errorf("%w: %w", ErrExtendFailed, err)
	case errors.Is(err, redsync.ErrLockAlreadyExpired):
		return fmt.Errorf("%w: %w", ErrLockExpired, err)
	}
	return err
}
