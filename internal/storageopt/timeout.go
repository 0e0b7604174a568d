package storageopt

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultHealthTimeout Health 未配置超时时使用。
const DefaultHealthTimeout = 5 * time.Second

// WithTimeout 为一次存储操作设置超时。timeout <= 0 或 ctx 已有 deadline 时原样返回 ctx。
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// Counter 统计调用次数与失败次数，零值可用。
type Counter struct {
	total  atomic.Int64
	failed atomic.Int64
}

// Observe 记录一次调用。
func (c *Counter) Observe(err error) {
	c.total.Add(1)
	if err != nil {
		c.failed.Add(1)
	}
}

func (c *Counter) Total() int64  { return c.total.Load() }
func (c *Counter) Failed() int64 { return c.failed.Load() }
