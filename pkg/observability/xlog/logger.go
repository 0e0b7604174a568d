package xlog

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

var _ LoggerWithLevel = (*xlogger)(nil)

// writeErrors 根 logger 与派生 logger 共享的写入错误回调。
type writeErrors struct {
	onError func(error)
	// busy 回调执行期间置位，期间的并发错误被丢弃
	busy atomic.Bool
}

func (w *writeErrors) report(err error) {
	if w.onError == nil || !w.busy.CompareAndSwap(false, true) {
		return
	}
	defer w.busy.Store(false)
	// 回调 panic 不影响业务 goroutine
	defer func() { _ = recover() }()
	w.onError(err)
}

type xlogger struct {
	handler   slog.Handler
	level     *slog.LevelVar
	addSource bool
	errs      *writeErrors
}

func newXLogger(h slog.Handler, level *slog.LevelVar, addSource bool, onError func(error)) *xlogger {
	return &xlogger{
		handler:   h,
		level:     level,
		addSource: addSource,
		errs:      &writeErrors{onError: onError},
	}
}

// emit 必须由导出方法直接调用，pc 的跳帧数依赖这一层级。
//
//go:noinline
func (l *xlogger) emit(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr, extra ...slog.Attr) {
	if !l.handler.Enabled(ctx, level) {
		return
	}
	var pc uintptr
	if l.addSource {
		var pcs [1]uintptr
		// runtime.Callers → emit → 导出方法 → 调用方
		runtime.Callers(3, pcs[:])
		pc = pcs[0]
	}
	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(attrs...)
	r.AddAttrs(extra...)
	if err := l.handler.Handle(ctx, r); err != nil {
		l.errs.report(err)
	}
}

func (l *xlogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelDebug, msg, attrs)
}

func (l *xlogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelInfo, msg, attrs)
}

func (l *xlogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelWarn, msg, attrs)
}

func (l *xlogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelError, msg, attrs)
}

func (l *xlogger) Stack(ctx context.Context, msg string, attrs ...slog.Attr) {
	if !l.handler.Enabled(ctx, slog.LevelError) {
		return
	}
	l.emit(ctx, slog.LevelError, msg, attrs, slog.String(KeyStack, string(debug.Stack())))
}

func (l *xlogger) With(attrs ...slog.Attr) Logger {
	if len(attrs) == 0 {
		return l
	}
	child := *l
	child.handler = l.handler.WithAttrs(attrs)
	return &child
}

func (l *xlogger) WithGroup(name string) Logger {
	if name == "" {
		return l
	}
	child := *l
	child.handler = l.handler.WithGroup(name)
	return &child
}

func (l *xlogger) SetLevel(level Level) { l.level.Set(level) }

func (l *xlogger) GetLevel() Level { return l.level.Level() }

func (l *xlogger) Enabled(ctx context.Context, level Level) bool {
	return l.handler.Enabled(ctx, level)
}
