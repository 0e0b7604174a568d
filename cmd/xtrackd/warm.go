package main

import (
	"context"
	"time"

	"github.com/omeyang/xtrack/pkg/distributed/xdlock"
	"github.com/omeyang/xtrack/pkg/observability/xlog"
)

const warmLockKey = "snapshot-warm"

type snapshotRefresher interface {
	RefreshSnapshot(ctx context.Context) error
}

// snapshotWarmer 周期重建快照。多副本部署时每个周期只有抢到锁的副本执行。
type snapshotWarmer struct {
	svc      snapshotRefresher
	locks    xdlock.Factory
	prefix   string
	interval time.Duration
	logger   xlog.Logger
}

// lockExpiry 锁不主动释放，略短于周期，下个周期开始前过期。
func (w *snapshotWarmer) lockExpiry() time.Duration {
	return w.interval * 9 / 10
}

// tick 执行一次预热，失败只记录日志，返回 nil 让 xrun.Ticker 继续运行。
func (w *snapshotWarmer) tick(ctx context.Context) error {
	if w.locks != nil {
		handle, err := w.locks.TryLock(ctx, warmLockKey,
			xdlock.WithKeyPrefix(w.prefix),
			xdlock.WithExpiry(w.lockExpiry()))
		if err != nil {
			w.logger.Warn(ctx, "acquire snapshot warm lock failed",
				xlog.Component(serviceName), xlog.Err(err))
			return nil
		}
		if handle == nil {
			w.logger.Debug(ctx, "snapshot warm skipped, held by another replica",
				xlog.Component(serviceName))
			return nil
		}
	}

	start := time.Now()
	if err := w.svc.RefreshSnapshot(ctx); err != nil {
		w.logger.Warn(ctx, "warm snapshot failed",
			xlog.Component(serviceName), xlog.Err(err))
		return nil
	}
	w.logger.Debug(ctx, "snapshot warmed",
		xlog.Component(serviceName), xlog.Duration(time.Since(start)))
	return nil
}
