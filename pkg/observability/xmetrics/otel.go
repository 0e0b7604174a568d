package xmetrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xtrack/pkg/context/xctx"
)

const (
	instrumentationName = "github.com/omeyang/xtrack/pkg/observability/xmetrics"

	metricOperationTotal    = "xtrack.operation.total"
	metricOperationDuration = "xtrack.operation.duration"

	unknown = "unknown"
)

var (
	// ErrInvalidBuckets 直方图桶边界为空、含 NaN/Inf 或非严格递增
	ErrInvalidBuckets = errors.New("xmetrics: invalid histogram buckets")

	// ErrNilOption NewOTelObserver 收到 nil 选项
	ErrNilOption = errors.New("xmetrics: nil option")
)

// 从缓存命中的亚毫秒到带退避重试的秒级分配。
var defaultBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type otelOptions struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	buckets        []float64
}

// Option NewOTelObserver 选项
type Option func(*otelOptions)

// WithTracerProvider 默认使用 otel 全局 TracerProvider，nil 被忽略。
func WithTracerProvider(p trace.TracerProvider) Option {
	return func(o *otelOptions) {
		if p != nil {
			o.tracerProvider = p
		}
	}
}

// WithMeterProvider 默认使用 otel 全局 MeterProvider，nil 被忽略。
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(o *otelOptions) {
		if p != nil {
			o.meterProvider = p
		}
	}
}

// WithDurationBuckets 耗时直方图桶边界（秒），必须严格递增。
func WithDurationBuckets(buckets ...float64) Option {
	return func(o *otelOptions) { o.buckets = buckets }
}

func checkBuckets(buckets []float64) error {
	if len(buckets) == 0 {
		return ErrInvalidBuckets
	}
	prev := math.Inf(-1)
	for _, b := range buckets {
		if math.IsNaN(b) || math.IsInf(b, 0) || b <= prev {
			return fmt.Errorf("%w: %v", ErrInvalidBuckets, buckets)
		}
		prev = b
	}
	return nil
}

// NewOTelObserver 每个跨度产生一个 OTel span，并记录两个指标：
//   - xtrack.operation.total：计数，维度 component、operation、status，结果带 AttrSource 时增加 source
//   - xtrack.operation.duration：耗时直方图（秒），维度同上
func NewOTelObserver(opts ...Option) (Observer, error) {
	o := otelOptions{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		buckets:        defaultBuckets,
	}
	for _, opt := range opts {
		if opt == nil {
			return nil, ErrNilOption
		}
		opt(&o)
	}
	if err := checkBuckets(o.buckets); err != nil {
		return nil, err
	}

	meter := o.meterProvider.Meter(instrumentationName)
	total, err := meter.Int64Counter(metricOperationTotal,
		metric.WithDescription("Operations finished, by outcome."),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, fmt.Errorf("xmetrics: create counter: %w", err)
	}
	duration, err := meter.Float64Histogram(metricOperationDuration,
		metric.WithDescription("Operation latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(o.buckets...))
	if err != nil {
		return nil, fmt.Errorf("xmetrics: create histogram: %w", err)
	}

	return &otelObserver{
		tracer:   o.tracerProvider.Tracer(instrumentationName),
		total:    total,
		duration: duration,
	}, nil
}

type otelObserver struct {
	tracer   trace.Tracer
	total    metric.Int64Counter
	duration metric.Float64Histogram
}

func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	component, operation := orUnknown(opts.Component), orUnknown(opts.Operation)

	attrs := append([]attribute.KeyValue{
		attribute.String("component", component),
		attribute.String("operation", operation),
	}, toOTel(opts.Attrs)...)
	ctx, span := o.tracer.Start(parentFromXctx(ctx), operation,
		trace.WithSpanKind(spanKind(opts.Kind)),
		trace.WithAttributes(attrs...))

	return syncXctx(ctx, span.SpanContext()), &otelSpan{
		observer:  o,
		span:      span,
		ctx:       ctx,
		component: component,
		operation: operation,
		start:     time.Now(),
	}
}

type otelSpan struct {
	observer  *otelObserver
	span      trace.Span
	ctx       context.Context
	component string
	operation string
	start     time.Time
	once      sync.Once
}

func (s *otelSpan) End(result Result) {
	if s == nil {
		return
	}
	s.once.Do(func() { s.end(result) })
}

func (s *otelSpan) end(result Result) {
	status := result.Status
	if status == "" {
		status = StatusOK
		if result.Err != nil {
			status = StatusError
		}
	}

	if result.Err != nil {
		s.span.RecordError(result.Err)
	}
	if status == StatusError {
		desc := "operation failed"
		if result.Err != nil {
			desc = result.Err.Error()
		}
		s.span.SetStatus(codes.Error, desc)
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	if len(result.Attrs) > 0 {
		s.span.SetAttributes(toOTel(result.Attrs)...)
	}
	s.span.End()

	dims := []attribute.KeyValue{
		attribute.String("component", s.component),
		attribute.String("operation", s.operation),
		attribute.String("status", string(status)),
	}
	if src, ok := lookup(result.Attrs, AttrSource); ok {
		dims = append(dims, attribute.String("source", src))
	}
	set := metric.WithAttributes(dims...)
	// 调用方取消后仍需记录
	ctx := context.WithoutCancel(s.ctx)
	s.observer.total.Add(ctx, 1, set)
	s.observer.duration.Record(ctx, time.Since(s.start).Seconds(), set)
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func lookup(attrs []Attr, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			if v, ok := a.Value.(string); ok && v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func spanKind(k Kind) trace.SpanKind {
	switch k {
	case KindServer:
		return trace.SpanKindServer
	case KindClient:
		return trace.SpanKindClient
	default:
		return trace.SpanKindInternal
	}
}

func toOTel(attrs []Attr) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		if a.Key == "" || a.Value == nil {
			continue
		}
		out = append(out, keyValue(a))
	}
	return out
}

func keyValue(a Attr) attribute.KeyValue {
	switch v := a.Value.(type) {
	case string:
		return attribute.String(a.Key, v)
	case bool:
		return attribute.Bool(a.Key, v)
	case int:
		return attribute.Int(a.Key, v)
	case int64:
		return attribute.Int64(a.Key, v)
	case float64:
		return attribute.Float64(a.Key, v)
	case time.Duration:
		return attribute.Int64(a.Key, v.Nanoseconds())
	default:
		return attribute.String(a.Key, fmt.Sprint(v))
	}
}

// parentFromXctx ctx 中没有 OTel span 但 xctx 带有合法的 trace_id 与 span_id 时，
// 以其作为远端父 span，使日志与链路使用同一个 trace_id。
func parentFromXctx(ctx context.Context) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	traceID, err := trace.TraceIDFromHex(xctx.TraceID(ctx))
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(xctx.SpanID(ctx))
	if err != nil {
		return ctx
	}
	var flags trace.TraceFlags
	if f, err := strconv.ParseUint(xctx.TraceFlags(ctx), 16, 8); err == nil {
		flags = trace.TraceFlags(f)
	}
	return trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}))
}

// syncXctx 把新 span 的 ID 写回 xctx，下游日志输出的 span_id 与链路一致。
func syncXctx(ctx context.Context, sc trace.SpanContext) context.Context {
	if !sc.IsValid() {
		return ctx
	}
	next, err := xctx.WithTrace(ctx, xctx.Trace{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		RequestID:  xctx.RequestID(ctx),
		TraceFlags: sc.TraceFlags().String(),
	})
	if err != nil {
		return ctx
	}
	return next
}
