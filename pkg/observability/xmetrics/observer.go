package xmetrics

import "context"

// Kind 跨度类型
type Kind int

const (
	// KindInternal 进程内操作，如单号分配、快照重建
	KindInternal Kind = iota
	// KindServer HTTP 请求处理
	KindServer
	// KindClient 对 Redis、MongoDB 的调用
	KindClient
)

// Status 跨度结果
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Attr 跨度属性，Value 支持 string、bool、各类整数与浮点数，其余类型按 fmt 格式化。
type Attr struct {
	Key   string
	Value any
}

// SpanOptions 开始跨度的参数
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result 结束跨度的参数。Status 为空时 Err 非 nil 即为 error。
// 预期内的错误（如未找到）可以显式传 StatusOK 与 Err，错误只作为事件记录。
type Result struct {
	Status Status
	Err    error
	Attrs  []Attr
}

// Span 一次观测，End 只有第一次调用生效。
type Span interface {
	End(result Result)
}

// Observer 业务代码依赖的观测接口。
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 不做任何记录。
type NoopObserver struct{}

func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan 不做任何记录。
type NoopSpan struct{}

func (NoopSpan) End(Result) {}

// Start 容忍 nil ctx、nil observer 以及返回 nil 的 observer，始终返回可用的 ctx 与 Span。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	next, span := observer.Start(ctx, opts)
	if next == nil {
		next = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return next, span
}

// Observe 在一个跨度内执行 fn，以 fn 的返回值结束跨度。
func Observe(ctx context.Context, observer Observer, opts SpanOptions, fn func(ctx context.Context) error) error {
	ctx, span := Start(ctx, observer, opts)
	err := fn(ctx)
	span.End(Result{Err: err})
	return err
}
