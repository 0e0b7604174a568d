// Package xlog 基于 log/slog 的结构化日志库。
//
// # 核心功能
//
//   - Builder 模式配置（输出目标、级别、格式、轮转、服务名固定属性）
//   - 自动从 context 注入 trace_id、request_id、customer_slug 等（默认启用，SetEnrich(false) 关闭）
//   - 动态级别调整（配置热更新时调用 SetLevel，派生 logger 同步生效）
//   - 进程级默认 logger（Default），供未注入 logger 的组件使用
//
// # 创建 Logger
//
//	logger, cleanup, err := xlog.New().
//	    SetLevelString(cfg.Log.Level).
//	    SetFormat(cfg.Log.Format).
//	    SetService("xtrackd", version).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
//
// Builder 采用 first-error-wins，为一次性使用。
//
// # 便捷属性
//
// 通用：[Err]、[Duration]、[Component]、[Operation]、[Count]、[StatusCode]、[Method]、[Path]、[ClientIP]。
// 运单领域：[TrackingNumber]、[Attempt]、[Source]。
//
// # 派生 Logger 与级别控制
//
// [Logger.With] 和 [Logger.WithGroup] 返回 [Logger] 接口，底层实现同时实现
// [LoggerWithLevel]，可通过类型断言获取级别控制能力。
package xlog
