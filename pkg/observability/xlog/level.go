package xlog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level 日志级别，即 slog.Level，可直接用于 koanf 配置反序列化。
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel 解析 debug/info/warn/error，大小写不敏感，接受 warning 作为 warn 的别名。
// 不接受 slog 的偏移写法（如 "INFO+2"），配置文件只允许四个标准级别。
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	switch name {
	case "debug", "info", "warn", "error":
		var l Level
		// 标准名称不会解析失败
		_ = l.UnmarshalText([]byte(name))
		return l, nil
	}
	return LevelInfo, fmt.Errorf("xlog: unknown level %q", s)
}
