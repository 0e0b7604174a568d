package xlog

import (
	"context"
	"log/slog"

	"github.com/omeyang/xtrack/pkg/context/xctx"
)

// enrichHandler 在每条记录上追加 ctx 中的追踪字段（trace_id、span_id、request_id、trace_flags）
// 与客户字段（customer_id、customer_slug），缺失的字段不输出。
// WithGroup 之后追加的字段落在该分组内。
type enrichHandler struct {
	next slog.Handler
}

func (h enrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h enrichHandler) Handle(ctx context.Context, r slog.Record) error {
	// trace 4 个 + customer 2 个
	var buf [6]slog.Attr
	attrs := xctx.AppendCustomerAttrs(xctx.AppendTraceAttrs(buf[:0], ctx), ctx)
	if len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func (h enrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return enrichHandler{next: h.next.WithAttrs(attrs)}
}

func (h enrichHandler) WithGroup(name string) slog.Handler {
	return enrichHandler{next: h.next.WithGroup(name)}
}
