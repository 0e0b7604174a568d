package xcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xtrack/internal/storageopt"
)

// =============================================================================
// 工厂函数
// =============================================================================

// NewRedis 创建 Redis 缓存实例。
// client 必须是已初始化的 redis.UniversalClient，Close 时一并关闭。
func NewRedis(client redis.UniversalClient, opts ...RedisOption) (Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	options := defaultRedisOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &redisWrapper{
		client:  client,
		options: options,
	}, nil
}

// =============================================================================
// Redis 实现
// =============================================================================

type redisWrapper struct {
	client  redis.UniversalClient
	options *RedisOptions
	closed  atomic.Bool
	pings   storageopt.Counter
}

func (r *redisWrapper) key(k string) string {
	return r.options.KeyPrefix + k
}

// do 在熔断器保护下执行 fn（未配置熔断器时直接执行）。
func (r *redisWrapper) do(ctx context.Context, fn func() error) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if r.options.Breaker == nil {
		return fn()
	}
	return r.options.Breaker.Do(ctx, fn)
}

func (r *redisWrapper) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	var (
		val   string
		found bool
	)
	err := r.do(ctx, func() error {
		v, err := r.client.Get(ctx, r.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("xcache: get %s: %w", key, err)
	}
	return val, found, nil
}

func (r *redisWrapper) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	var ok bool
	err := r.do(ctx, func() error {
		var err error
		ok, err = r.client.SetNX(ctx, r.key(key), value, ttl).Result()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("xcache: setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *redisWrapper) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	err := r.do(ctx, func() error {
		return r.client.Set(ctx, r.key(key), value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("xcache: set %s: %w", key, err)
	}
	return nil
}

func (r *redisWrapper) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	var n int64
	err := r.do(ctx, func() error {
		var err error
		n, err = r.client.Exists(ctx, r.key(key)).Result()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("xcache: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (r *redisWrapper) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			return ErrEmptyKey
		}
		full = append(full, r.key(k))
	}

	err := r.do(ctx, func() error {
		// 集群模式下多 key DEL 可能跨 slot，逐个删除。
		if _, ok := r.client.(*redis.ClusterClient); ok {
			for _, k := range full {
				if err := r.client.Del(ctx, k).Err(); err != nil {
					return err
				}
			}
			return nil
		}
		return r.client.Del(ctx, full...).Err()
	})
	if err != nil {
		return fmt.Errorf("xcache: delete %d keys: %w", len(keys), err)
	}
	return nil
}

func (r *redisWrapper) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	match := escapeGlob(r.options.KeyPrefix) + pattern

	seen := make(map[string]struct{})
	var mu sync.Mutex
	scan := func(ctx context.Context, c redis.Cmdable) error {
		iter := c.Scan(ctx, 0, match, r.options.ScanCount).Iterator()
		for iter.Next(ctx) {
			k := strings.TrimPrefix(iter.Val(), r.options.KeyPrefix)
			mu.Lock()
			seen[k] = struct{}{}
			mu.Unlock()
		}
		return iter.Err()
	}

	err := r.do(ctx, func() error {
		if cc, ok := r.client.(*redis.ClusterClient); ok {
			return cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
				return scan(ctx, node)
			})
		}
		return scan(ctx, r.client)
	})
	if err != nil {
		return nil, fmt.Errorf("xcache: scan %s: %w", pattern, err)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys, nil
}

// escapeGlob 转义 SCAN MATCH 的通配字符，使前缀按字面匹配。
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (r *redisWrapper) Health(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := storageopt.WithTimeout(ctx, r.options.HealthTimeout)
	defer cancel()

	err := r.client.Ping(ctx).Err()
	r.pings.Observe(err)
	if err != nil {
		return fmt.Errorf("xcache: ping: %w", err)
	}
	return nil
}

func (r *redisWrapper) Client() redis.UniversalClient {
	return r.client
}

func (r *redisWrapper) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return r.client.Close()
}

// Stats 返回健康检查统计。
type Stats struct {
	PingCount  int64
	PingErrors int64
}

// StatsOf 返回缓存实例的健康检查统计，非本包创建的实例返回零值。
func StatsOf(c Redis) Stats {
	w, ok := c.(*redisWrapper)
	if !ok {
		return Stats{}
	}
	return Stats{
		PingCount:  w.pings.Total(),
		PingErrors: w.pings.Failed(),
	}
}
