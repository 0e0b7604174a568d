package xctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
)

// ErrNilContext WithXxx 收到 nil context。
var ErrNilContext = errors.New("xctx: nil context")

// 日志字段名，与 OpenTelemetry 语义约定一致。
const (
	KeyTraceID      = "trace_id"
	KeySpanID       = "span_id"
	KeyRequestID    = "request_id"
	KeyTraceFlags   = "trace_flags"
	KeyCustomerID   = "customer_id"
	KeyCustomerSlug = "customer_slug"
)

type ctxKey struct{}

// fields 以值存放在 context 中，每次写入复制一份，父 context 不受影响。
type fields struct {
	trace        Trace
	customerID   string
	customerSlug string
}

func load(ctx context.Context) fields {
	if ctx == nil {
		return fields{}
	}
	f, _ := ctx.Value(ctxKey{}).(fields)
	return f
}

func update(ctx context.Context, fn func(*fields)) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	f := load(ctx)
	fn(&f)
	return context.WithValue(ctx, ctxKey{}, f), nil
}

// =============================================================================
// Trace
// =============================================================================

// Trace W3C Trace Context 字段与请求 ID。
type Trace struct {
	TraceID    string
	SpanID     string
	RequestID  string
	TraceFlags string
}

func (t *Trace) merge(o Trace) {
	if o.TraceID != "" {
		t.TraceID = o.TraceID
	}
	if o.SpanID != "" {
		t.SpanID = o.SpanID
	}
	if o.RequestID != "" {
		t.RequestID = o.RequestID
	}
	if o.TraceFlags != "" {
		t.TraceFlags = o.TraceFlags
	}
}

// GetTrace 缺失字段为空字符串。
func GetTrace(ctx context.Context) Trace { return load(ctx).trace }

func TraceID(ctx context.Context) string    { return load(ctx).trace.TraceID }
func SpanID(ctx context.Context) string     { return load(ctx).trace.SpanID }
func RequestID(ctx context.Context) string  { return load(ctx).trace.RequestID }
func TraceFlags(ctx context.Context) string { return load(ctx).trace.TraceFlags }

// WithTrace 写入 tr 的非空字段，其余字段保持原值。
func WithTrace(ctx context.Context, tr Trace) (context.Context, error) {
	return update(ctx, func(f *fields) { f.trace.merge(tr) })
}

func WithTraceID(ctx context.Context, id string) (context.Context, error) {
	return WithTrace(ctx, Trace{TraceID: id})
}

func WithRequestID(ctx context.Context, id string) (context.Context, error) {
	return WithTrace(ctx, Trace{RequestID: id})
}

// EnsureTrace 补全缺失的 trace_id、span_id、request_id，已有字段不变。
// trace_flags 是上游的采样决策，不自动生成。
func EnsureTrace(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	cur := GetTrace(ctx)
	var gen Trace
	if cur.TraceID == "" {
		gen.TraceID = randomHex(16)
	}
	if cur.SpanID == "" {
		gen.SpanID = randomHex(8)
	}
	if cur.RequestID == "" {
		gen.RequestID = randomHex(16)
	}
	if gen == (Trace{}) {
		return ctx, nil
	}
	return WithTrace(ctx, gen)
}

// randomHex n 字节非全零随机数的小写十六进制，W3C 禁止全零 ID。
func randomHex(n int) string {
	buf := make([]byte, n)
	for {
		// crypto/rand.Read 失败时直接崩溃，不会返回错误
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if b != 0 {
				return hex.EncodeToString(buf)
			}
		}
	}
}

// =============================================================================
// Customer
// =============================================================================

func CustomerID(ctx context.Context) string   { return load(ctx).customerID }
func CustomerSlug(ctx context.Context) string { return load(ctx).customerSlug }

// WithCustomer 记录申请运单号的客户，空值不覆盖已有字段。
func WithCustomer(ctx context.Context, id, slug string) (context.Context, error) {
	return update(ctx, func(f *fields) {
		if id != "" {
			f.customerID = id
		}
		if slug != "" {
			f.customerSlug = slug
		}
	})
}

// =============================================================================
// 日志
// =============================================================================

// AppendTraceAttrs 追加非空的追踪字段，attrs 可预分配以避免热路径分配。
func AppendTraceAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	tr := GetTrace(ctx)
	return appendNonEmpty(attrs,
		KeyTraceID, tr.TraceID,
		KeySpanID, tr.SpanID,
		KeyRequestID, tr.RequestID,
		KeyTraceFlags, tr.TraceFlags)
}

// AppendCustomerAttrs 追加非空的客户字段。
func AppendCustomerAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	f := load(ctx)
	return appendNonEmpty(attrs, KeyCustomerID, f.customerID, KeyCustomerSlug, f.customerSlug)
}

// appendNonEmpty kv 为交替的 key、value。
func appendNonEmpty(attrs []slog.Attr, kv ...string) []slog.Attr {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			attrs = append(attrs, slog.String(kv[i], kv[i+1]))
		}
	}
	return attrs
}
