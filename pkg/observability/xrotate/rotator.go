package xrotate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// ErrEmptyFilename 未指定日志文件
	ErrEmptyFilename = errors.New("xrotate: filename is required")

	// ErrInvalidConfig 大小、份数或天数越界，或未配置任何清理策略
	ErrInvalidConfig = errors.New("xrotate: invalid config")

	// ErrClosed 已关闭
	ErrClosed = errors.New("xrotate: rotator is closed")
)

// Rotator 可轮转的日志输出，Write 并发安全，Close 后 Write 返回 ErrClosed。
type Rotator interface {
	io.WriteCloser
}

// 上限
const (
	maxSizeMB  = 10240
	maxBackups = 1024
	maxAgeDays = 3650
)

type config struct {
	sizeMB   int
	backups  int
	ageDays  int
	compress bool
	local    bool
}

// Option 轮转选项
type Option func(*config)

// WithMaxSize 单文件上限（MB），1 到 10240，默认 100。
func WithMaxSize(mb int) Option { return func(c *config) { c.sizeMB = mb } }

// WithMaxBackups 保留的备份份数，0 表示不按份数清理，默认 7。
func WithMaxBackups(n int) Option { return func(c *config) { c.backups = n } }

// WithMaxAge 备份保留天数，0 表示不按天数清理，默认 14。
func WithMaxAge(days int) Option { return func(c *config) { c.ageDays = days } }

// WithCompress 是否 gzip 备份，默认压缩。
func WithCompress(on bool) Option { return func(c *config) { c.compress = on } }

// WithLocalTime 备份文件名使用本地时间，默认 UTC。
func WithLocalTime(on bool) Option { return func(c *config) { c.local = on } }

func (c config) validate() error {
	switch {
	case c.sizeMB < 1 || c.sizeMB > maxSizeMB:
		return fmt.Errorf("%w: max size %dMB, want 1~%d", ErrInvalidConfig, c.sizeMB, maxSizeMB)
	case c.backups < 0 || c.backups > maxBackups:
		return fmt.Errorf("%w: max backups %d, want 0~%d", ErrInvalidConfig, c.backups, maxBackups)
	case c.ageDays < 0 || c.ageDays > maxAgeDays:
		return fmt.Errorf("%w: max age %d days, want 0~%d", ErrInvalidConfig, c.ageDays, maxAgeDays)
	case c.backups == 0 && c.ageDays == 0:
		// 两者都为 0 时备份永不清理
		return fmt.Errorf("%w: max backups and max age cannot both be 0", ErrInvalidConfig)
	}
	return nil
}

type lumberjackRotator struct {
	out    *lumberjack.Logger
	closed atomic.Bool
}

// NewLumberjack 按大小轮转写入 filename，缺失的父目录以 0750 创建。
func NewLumberjack(filename string, opts ...Option) (Rotator, error) {
	if filename == "" {
		return nil, ErrEmptyFilename
	}
	cfg := config{sizeMB: 100, backups: 7, ageDays: 14, compress: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	path := filepath.Clean(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("xrotate: create log dir: %w", err)
	}
	return &lumberjackRotator{out: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.sizeMB,
		MaxBackups: cfg.backups,
		MaxAge:     cfg.ageDays,
		Compress:   cfg.compress,
		LocalTime:  cfg.local,
	}}, nil
}

func (r *lumberjackRotator) Write(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	return r.out.Write(p)
}

// Close 重复调用返回 ErrClosed。
func (r *lumberjackRotator) Close() error {
	if r.closed.Swap(true) {
		return ErrClosed
	}
	return r.out.Close()
}
