package xlog

import (
	"context"
	"log/slog"
)

// Logger 结构化日志接口。
// 所有方法都接收 ctx，EnrichHandler 从中取出追踪与客户字段；属性只接受 slog.Attr。
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// Stack 以 Error 级别记录，并附带当前 goroutine 的堆栈。
	Stack(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 派生 logger 与父级共享级别，SetLevel 对两者同时生效。
	With(attrs ...slog.Attr) Logger
	WithGroup(name string) Logger
}

// LoggerWithLevel Build 返回的 logger，额外支持运行时调整级别。
type LoggerWithLevel interface {
	Logger

	SetLevel(level Level)
	GetLevel() Level
	Enabled(ctx context.Context, level Level) bool
}
