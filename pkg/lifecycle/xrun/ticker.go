package xrun

import (
	"context"
	"time"
)

// Ticker 每隔 interval 执行一次 fn，immediate 为 true 时启动后先执行一次。
// fn 返回错误时服务退出，需要容忍失败的任务应在 fn 内记录日志并返回 nil。
func Ticker(interval time.Duration, immediate bool, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		switch {
		case interval <= 0:
			return ErrInvalidInterval
		case fn == nil:
			return ErrNilFunc
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if immediate {
			if err := fn(ctx); err != nil {
				return err
			}
		}

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				if err := fn(ctx); err != nil {
					return err
				}
			}
		}
	}
}
