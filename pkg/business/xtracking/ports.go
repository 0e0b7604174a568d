package xtracking

import (
	"context"
	"time"
)

//go:generate mockgen -source=ports.go -destination=mock_ports_test.go -package=xtracking

// Cache lookaside 缓存。key 为逻辑 key，命名空间前缀由实现负责。
// xcache.Redis 满足此接口。
type Cache interface {
	// Get key 不存在时返回 ("", false, nil)。
	Get(ctx context.Context, key string) (string, bool, error)

	// SetIfAbsent 原子条件写入，返回 false 表示 key 已存在。
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error

	// KeysMatching 返回匹配 glob 模式的全部 key。
	KeysMatching(ctx context.Context, pattern string) ([]string, error)
}

// Store 权威记录存储。trackstore.Store 满足此接口。
type Store interface {
	Exists(ctx context.Context, trackingNumber string) (bool, error)

	// Get 记录不存在时返回 ErrNotFound。
	Get(ctx context.Context, trackingNumber string) (*Record, error)

	// Put 唯一索引冲突时返回包裹 ErrDuplicate 的错误。
	Put(ctx context.Context, record *Record) error

	// Query 按 Criteria.Effective() 的语义查询，limit 为 0 表示不限制。
	Query(ctx context.Context, criteria Criteria, limit int64) ([]Record, error)

	Count(ctx context.Context) (int64, error)

	List(ctx context.Context, opts ListOptions) ([]Record, error)
}
