package xlog

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// 组件未注入 logger 时使用的进程级默认值。
var global atomic.Pointer[LoggerWithLevel]

// Default 返回默认 logger，首次调用时创建：stderr、info、text。
func Default() LoggerWithLevel {
	if l := global.Load(); l != nil {
		return *l
	}
	logger, _, err := New().Build()
	if err != nil {
		logger = newXLogger(slog.NewTextHandler(os.Stderr, nil), new(slog.LevelVar), false, nil)
	}
	// 并发首次调用时只保留一个
	global.CompareAndSwap(nil, &logger)
	return *global.Load()
}

// SetDefault 替换默认 logger，nil 被忽略。
func SetDefault(l LoggerWithLevel) {
	if l != nil {
		global.Store(&l)
	}
}

// ResetDefault 清除默认 logger，下次 Default 重新创建。仅用于测试。
func ResetDefault() {
	global.Store(nil)
}
