package xrun

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var defaultSignals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}

// 测试注入点
var (
	notify = signal.Notify
	stop   = signal.Stop
)

func (g *Group) waitSignal(signals []os.Signal) error {
	ch := make(chan os.Signal, 1)
	notify(ch, signals...)
	defer stop(ch)

	select {
	case sig := <-ch:
		g.logger.Info(g.ctx, "received signal, shutting down", slog.String("signal", sig.String()))
		g.cancel(&SignalError{Signal: sig})
	case <-g.ctx.Done():
	}
	return nil
}
