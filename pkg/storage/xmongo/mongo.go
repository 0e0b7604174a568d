package xmongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/omeyang/xtrack/pkg/observability/xmetrics"
)

var (
	ErrNilClient     = errors.New("xmongo: nil client")
	ErrNilContext    = errors.New("xmongo: nil context")
	ErrClosed        = errors.New("xmongo: closed")
	ErrNilCollection = errors.New("xmongo: nil collection")
	ErrNilDocument   = errors.New("xmongo: nil document")
)

const (
	// DefaultQueryTimeout Find、Count 在调用方未设置 deadline 时的超时。
	DefaultQueryTimeout = 30 * time.Second

	// DefaultWriteTimeout InsertOne 在调用方未设置 deadline 时的超时。
	DefaultWriteTimeout = 10 * time.Second
)

// Mongo 为 mongo.Client 补充观测、计数和超时兜底。
// 其余操作（建索引、事务等）直接使用 Client()。
type Mongo interface {
	Client() *mongo.Client

	// Health 对主节点执行 Ping。
	Health(ctx context.Context) error

	// Stats Close 之后仍可调用。
	Stats() Stats

	// Close 断开连接，重复调用返回 ErrClosed。
	Close(ctx context.Context) error

	// Find 把结果解码到 results（切片指针），无匹配时为空切片而不是 nil。
	Find(ctx context.Context, coll *mongo.Collection, filter any, opts FindOptions, results any) error

	// Count limit > 0 时最多统计 limit 条。
	Count(ctx context.Context, coll *mongo.Collection, filter any, limit int64) (int64, error)

	// InsertOne 保留驱动错误链，唯一索引冲突可用 mongo.IsDuplicateKeyError 判断。
	InsertOne(ctx context.Context, coll *mongo.Collection, doc any) error
}

// FindOptions 分页读取必须指定稳定的 Sort，否则翻页可能重复或遗漏。
type FindOptions struct {
	Sort bson.D
	// Skip 负值按 0 处理
	Skip int64
	// Limit <= 0 不限制
	Limit int64
}

// Stats 包装器累计的调用统计。
type Stats struct {
	PingCount   int64
	PingErrors  int64
	Queries     int64
	QueryErrors int64
	// Sessions 进行中的会话数，driver v2 不暴露连接池明细。
	Sessions int
}

type options struct {
	healthTimeout time.Duration
	queryTimeout  time.Duration
	writeTimeout  time.Duration
	observer      xmetrics.Observer
}

// Option New 的选项
type Option func(*options)

// WithHealthTimeout 非正值被忽略。
func WithHealthTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.healthTimeout = d
		}
	}
}

// WithQueryTimeout 0 表示完全依赖调用方 context，负值被忽略。
func WithQueryTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.queryTimeout = d
		}
	}
}

// WithWriteTimeout 0 表示完全依赖调用方 context，负值被忽略。
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.writeTimeout = d
		}
	}
}

// WithObserver 默认不记录观测数据。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// New 包装已连接的 client，Close 时断开。
func New(client *mongo.Client, opts ...Option) (Mongo, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return newWrapper(client, client, opts...), nil
}
