package xrun

import (
	"context"
	"errors"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xtrack/pkg/observability/xlog"
)

type options struct {
	logger  xlog.Logger
	name    string
	signals []os.Signal
}

// Option Group 与 Run 的选项
type Option func(*options)

// WithLogger 记录服务启停的 logger，默认 xlog.Default()。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 日志中的 component，默认 "xrun"。
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithSignals Run 监听的退出信号，默认 SIGHUP、SIGINT、SIGTERM、SIGQUIT。
func WithSignals(signals ...os.Signal) Option {
	return func(o *options) {
		if len(signals) > 0 {
			o.signals = append([]os.Signal(nil), signals...)
		}
	}
}

// Service 由 Group 管理的长期任务。Run 应在 ctx 取消后尽快返回。
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// Group 一组同生共死的服务：任一服务返回错误时取消其余服务。
type Group struct {
	eg     *errgroup.Group
	ctx    context.Context
	parent context.Context
	cancel context.CancelCauseFunc
	logger xlog.Logger

	running sync.WaitGroup
}

// NewGroup 返回的 context 在任一服务出错或 Cancel 后被取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	g, gctx := newGroup(ctx, applyOptions(opts))
	return g, gctx
}

func applyOptions(opts []Option) options {
	o := options{name: "xrun", signals: defaultSignals}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	return o
}

func newGroup(ctx context.Context, o options) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := context.WithCancelCause(ctx)
	eg, gctx := errgroup.WithContext(parent)
	return &Group{
		eg:     eg,
		ctx:    gctx,
		parent: parent,
		cancel: cancel,
		logger: o.logger.With(xlog.Component(o.name)),
	}, gctx
}

// Go 启动服务，启停记录在 Debug 级别，非取消错误记录为 Warn。
func (g *Group) Go(svc Service) {
	g.running.Add(1)
	g.eg.Go(func() error {
		defer g.running.Done()
		if svc.Run == nil {
			return ErrNilFunc
		}
		logger := g.logger.With(xlog.Operation(svc.Name))
		logger.Debug(g.ctx, "service starting")
		err := svc.Run(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn(g.ctx, "service exited", xlog.Err(err))
		} else {
			logger.Debug(g.ctx, "service stopped")
		}
		return err
	})
}

// Cancel 取消所有服务，cause 非 nil 时作为 Wait 的返回值。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Wait 等待全部服务退出。
//
// 服务返回的非取消错误优先返回；Group 取消引起的 context.Canceled 被忽略；
// 否则返回 Cancel 或信号设置的原因。
func (g *Group) Wait() error {
	defer g.cancel(nil)
	err := g.eg.Wait()

	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		return err
	case g.parent.Err() == nil:
		// 服务自己产生的取消错误，Group 并未取消
		return err
	}
	if cause := context.Cause(g.parent); !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// Run 运行 services 并监听退出信号，收到信号时取消所有服务并返回 *SignalError。
// 所有服务都正常返回时 Run 返回 nil。
func Run(ctx context.Context, opts []Option, services ...Service) error {
	o := applyOptions(opts)
	g, _ := newGroup(ctx, o)
	g.eg.Go(func() error { return g.waitSignal(o.signals) })
	for _, svc := range services {
		g.Go(svc)
	}
	go func() {
		g.running.Wait()
		g.cancel(nil)
	}()
	return g.Wait()
}
