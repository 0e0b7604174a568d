package xconf

import (
	"errors"

	"github.com/knadh/koanf/v2"
)

// Format 配置数据格式。
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	ErrEmptyPath         = errors.New("xconf: empty config path")
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")
	ErrLoadFailed        = errors.New("xconf: failed to load config")
	ErrParseFailed       = errors.New("xconf: failed to parse config")
	ErrUnmarshalFailed   = errors.New("xconf: failed to unmarshal config")
	ErrEmptyKey          = errors.New("xconf: empty override key")

	// ErrNotReloadable 字节数据创建的配置没有可重读的文件。
	ErrNotReloadable = errors.New("xconf: config created from bytes cannot be reloaded")
)

// Config 一份可重载的配置。键以 "." 分隔，例如 "redis.addr"。
type Config interface {
	// Client 返回当前快照。Reload 替换快照，已取得的旧快照不受影响。
	Client() *koanf.Koanf

	// Unmarshal 按 koanf 标签将 path 下的配置写入 target，path 为空表示整个配置。
	// 配置中缺失的键保留 target 原有值。
	Unmarshal(path string, target any) error

	// Override 记录一个覆盖值，优先于文件内容且在 Reload 后重新应用。
	// 空字符串表示未设置，直接忽略。
	Override(key string, value any) error

	// Reload 重读配置文件。解析失败时保留旧快照。
	Reload() error

	// Path 返回配置文件路径，字节数据创建时为空。
	Path() string

	Format() Format
}
