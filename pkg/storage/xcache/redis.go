package xcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xtrack/pkg/resilience/xbreaker"
)

// =============================================================================
// Redis 接口定义
// =============================================================================

// Redis 定义 lookaside 缓存接口。
//
// 所有 key 参数均为逻辑 key，配置了 KeyPrefix 时由实现自动加前缀，
// KeysMatching 返回的 key 也已去除前缀。
type Redis interface {
	// Get 读取字符串值。key 不存在时返回 ("", false, nil)。
	Get(ctx context.Context, key string) (string, bool, error)

	// SetIfAbsent 仅当 key 不存在时写入（SET NX EX）。
	// 返回 true 表示本次写入成功，false 表示 key 已存在。
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Set 无条件写入并设置过期时间。
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Exists 判断 key 是否存在（任意值）。
	Exists(ctx context.Context, key string) (bool, error)

	// Delete 删除 key，不存在的 key 被忽略。不传 key 时为空操作。
	Delete(ctx context.Context, keys ...string) error

	// KeysMatching 返回匹配 glob 模式的全部 key（SCAN MATCH，非阻塞遍历）。
	// 结果不保证顺序，遍历期间并发写入的 key 可能出现或缺失。
	KeysMatching(ctx context.Context, pattern string) ([]string, error)

	// Health 通过 PING 检测连接状态。
	Health(ctx context.Context) error

	// Client 返回底层的 redis.UniversalClient。
	Client() redis.UniversalClient

	// Close 关闭缓存连接。重复关闭返回 ErrClosed。
	Close() error
}

// =============================================================================
// Redis 配置选项
// =============================================================================

// RedisOptions 定义 Redis 缓存的配置选项。
type RedisOptions struct {
	// KeyPrefix 所有 key 的命名空间前缀。
	// 默认为空。
	KeyPrefix string

	// ScanCount 每次 SCAN 的 COUNT 提示值。
	// 默认为 100。
	ScanCount int64

	// Breaker 熔断器，为 nil 时不启用熔断。
	Breaker *xbreaker.Breaker

	// HealthTimeout 健康检查超时（仅在 ctx 无 deadline 时生效）。
	// 默认为 5 秒。
	HealthTimeout time.Duration
}

// RedisOption 定义配置 Redis 缓存的函数类型。
type RedisOption func(*RedisOptions)

func defaultRedisOptions() *RedisOptions {
	return &RedisOptions{
		ScanCount:     100,
		HealthTimeout: 5 * time.Second,
	}
}

// WithKeyPrefix 设置 key 命名空间前缀。
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *RedisOptions) {
		o.KeyPrefix = prefix
	}
}

// WithScanCount 设置 SCAN 的 COUNT 提示值，n <= 0 时保持默认值。
func WithScanCount(n int64) RedisOption {
	return func(o *RedisOptions) {
		if n > 0 {
			o.ScanCount = n
		}
	}
}

// WithBreaker 设置熔断器。
//
// 推荐与 xbreaker.IgnoreContextErrors 组合，避免调用方取消被计为 Redis 故障。
func WithBreaker(b *xbreaker.Breaker) RedisOption {
	return func(o *RedisOptions) {
		o.Breaker = b
	}
}

// WithHealthTimeout 设置健康检查超时，d <= 0 时保持默认值。
func WithHealthTimeout(d time.Duration) RedisOption {
	return func(o *RedisOptions) {
		if d > 0 {
			o.HealthTimeout = d
		}
	}
}
