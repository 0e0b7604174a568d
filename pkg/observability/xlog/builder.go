package xlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/omeyang/xtrack/pkg/observability/xrotate"
)

// ReplaceAttrFunc 与 slog.HandlerOptions.ReplaceAttr 相同，返回空 Key 的 Attr 即删除该属性。
type ReplaceAttrFunc func(groups []string, a slog.Attr) slog.Attr

// Builder 按步骤配置 logger。任一步出错后后续设置不再生效，错误由 Build 返回。
// Builder 只能 Build 一次。
type Builder struct {
	out         io.Writer
	rotator     xrotate.Rotator
	level       *slog.LevelVar
	json        bool
	addSource   bool
	enrich      bool
	fixed       []slog.Attr
	replaceAttr ReplaceAttrFunc
	onError     func(error)
	err         error
}

// New 默认输出到 stderr，info 级别，text 格式，注入 context 字段。
func New() *Builder {
	return &Builder{
		out:    os.Stderr,
		level:  new(slog.LevelVar),
		enrich: true,
	}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// SetOutput 设置输出目标。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w == nil {
		return b.fail(errors.New("xlog: nil output"))
	}
	b.out = w
	return b
}

// SetLevel 设置初始级别。
func (b *Builder) SetLevel(level Level) *Builder {
	b.level.Set(level)
	return b
}

// SetLevelString 按名称设置初始级别，见 ParseLevel。
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		return b.fail(err)
	}
	return b.SetLevel(level)
}

// SetFormat text 或 json，空串按 text 处理。
func (b *Builder) SetFormat(format string) *Builder {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		b.json = false
	case "json":
		b.json = true
	default:
		return b.fail(fmt.Errorf("xlog: unknown format %q", format))
	}
	return b
}

// SetAddSource 输出调用方源码位置。
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetEnrich 是否从 context 注入 trace_id、request_id、customer_slug 等字段。
func (b *Builder) SetEnrich(enable bool) *Builder {
	b.enrich = enable
	return b
}

// SetRotation 写入 filename 并按大小轮转，覆盖 SetOutput。文件在 cleanup 时关闭。
func (b *Builder) SetRotation(filename string, opts ...xrotate.Option) *Builder {
	r, err := xrotate.NewLumberjack(filename, opts...)
	if err != nil {
		return b.fail(err)
	}
	b.rotator, b.out = r, r
	return b
}

// SetOnError 写入失败（如磁盘已满）时同步回调。回调期间的并发失败被丢弃，回调 panic 被吞掉。
func (b *Builder) SetOnError(fn func(error)) *Builder {
	b.onError = fn
	return b
}

// SetReplaceAttr 用于脱敏或重命名字段：
//
//	xlog.New().SetReplaceAttr(func(_ []string, a slog.Attr) slog.Attr {
//	    if a.Key == "customer_name" {
//	        return slog.String(a.Key, "***")
//	    }
//	    return a
//	})
func (b *Builder) SetReplaceAttr(fn ReplaceAttrFunc) *Builder {
	b.replaceAttr = fn
	return b
}

// SetService 在每条日志上附加 service 与 version（version 为空时省略）。
func (b *Builder) SetService(name, version string) *Builder {
	if strings.TrimSpace(name) == "" {
		return b.fail(errors.New("xlog: empty service name"))
	}
	b.fixed = append(b.fixed, slog.String("service", name))
	if version != "" {
		b.fixed = append(b.fixed, slog.String("version", version))
	}
	return b
}

// Build 返回 logger 与幂等的 cleanup，cleanup 关闭轮转文件。
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.err != nil {
		if b.rotator != nil {
			_ = b.rotator.Close()
		}
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{Level: b.level, AddSource: b.addSource}
	if b.replaceAttr != nil {
		opts.ReplaceAttr = b.replaceAttr
	}
	var h slog.Handler
	if b.json {
		h = slog.NewJSONHandler(b.out, opts)
	} else {
		h = slog.NewTextHandler(b.out, opts)
	}
	if b.enrich {
		h = enrichHandler{next: h}
	}
	if len(b.fixed) > 0 {
		h = h.WithAttrs(b.fixed)
	}

	cleanup := func() error { return nil }
	if r := b.rotator; r != nil {
		cleanup = sync.OnceValue(r.Close)
	}
	return newXLogger(h, b.level, b.addSource, b.onError), cleanup, nil
}
