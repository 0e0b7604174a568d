// Package xmetrics 提供统一的可观测性接口（metrics + tracing）。
//
// 业务代码只依赖 Observer/Span/Attr；默认实现基于 OpenTelemetry。
//
//	obs, _ := xmetrics.NewOTelObserver()
//	err := xmetrics.Observe(ctx, obs, xmetrics.SpanOptions{
//		Component: "xtracking",
//		Operation: "allocate",
//	}, func(ctx context.Context) error {
//		_, err := engine.Allocate(ctx, in)
//		return err
//	})
//
// # 指标命名
//
//   - xtrack.operation.total
//   - xtrack.operation.duration（秒）
//
// 指标维度为 component、operation、status。Result.Attrs 带 AttrSource 时
// 额外记录 source，用于区分缓存命中与回源。
package xmetrics
