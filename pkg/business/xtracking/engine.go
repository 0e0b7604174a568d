package xtracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/xtrack/pkg/observability/xlog"
	"github.com/omeyang/xtrack/pkg/observability/xmetrics"
	"github.com/omeyang/xtrack/pkg/resilience/xretry"
)

// Engine 运单号分配引擎。
//
// 每次尝试依次执行：生成候选号 → 缓存存在性检查 → 存储存在性检查 →
// SET NX 预留（reserved）→ 持久化 → 升级为 permanent（尽力而为）。
// 任一检查命中即为碰撞，按指数退避重试；缓存或存储故障直接返回，不重试。
//
// 唯一的串行化点是单个候选号上的 SET NX，Engine 本身不持有锁，可并发使用。
type Engine struct {
	cache   Cache
	store   Store
	opts    *Options
	retryer *xretry.Retryer
}

// NewEngine 创建分配引擎。
func NewEngine(cache Cache, store Store, opts ...Option) (*Engine, error) {
	if cache == nil {
		return nil, ErrNilCache
	}
	if store == nil {
		return nil, ErrNilStore
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := o.engineDefaults(); err != nil {
		return nil, err
	}
	return newEngine(cache, store, o), nil
}

func newEngine(cache Cache, store Store, o *Options) *Engine {
	e := &Engine{cache: cache, store: store, opts: o}
	e.retryer = xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewRetryOn(o.Config.MaxAttempts, isCollision)),
		xretry.WithBackoffPolicy(o.Backoff),
	)
	return e
}

func isCollision(err error) bool {
	return errors.Is(err, ErrCollision)
}

// Allocate 分配一个全局唯一的运单号并持久化记录。
//
// 返回的错误：
//   - ErrGenerationExhausted：连续碰撞次数达到上限
//   - *InfrastructureError：缓存或存储故障
//   - ctx.Err()：上下文取消或超时
//   - 包裹 ErrEntropy 的错误：随机源故障
func (e *Engine) Allocate(ctx context.Context, in GenerationInput) (rec *Record, err error) {
	ctx, span := xmetrics.Start(ctx, e.opts.Observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: MetricsOpAllocate,
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String(xmetrics.AttrCustomerSlug, in.CustomerSlug)},
	})
	attempts := 0
	defer func() {
		span.End(xmetrics.Result{
			Err:   err,
			Attrs: []xmetrics.Attr{xmetrics.Int(xmetrics.AttrAttempts, attempts)},
		})
	}()

	rec, err = xretry.DoWithResult(ctx, e.retryer, func(ctx context.Context) (*Record, error) {
		attempts++
		r, attemptErr := e.attempt(ctx, in)
		if isCollision(attemptErr) {
			e.opts.Logger.Debug(ctx, "tracking number collision",
				xlog.Component(MetricsComponent), xlog.Attempt(attempts), xlog.Err(attemptErr))
		}
		return r, attemptErr
	})
	if err == nil {
		return rec, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if isCollision(err) {
		return nil, fmt.Errorf("%w: after %d attempts", ErrGenerationExhausted, attempts)
	}
	return nil, err
}

// attempt 执行一次完整的分配尝试。
func (e *Engine) attempt(ctx context.Context, in GenerationInput) (*Record, error) {
	// CreatedAt 与存储精度一致：UTC，毫秒
	now := e.opts.Clock().UTC().Truncate(time.Millisecond)
	tn, err := e.opts.Format.Generate(in, now, e.opts.Entropy)
	if err != nil {
		return nil, err
	}
	key := trackingKey(tn)

	cached, err := e.cache.Exists(ctx, key)
	if err != nil {
		return nil, infraErr("cache.exists", err)
	}
	if cached {
		return nil, fmt.Errorf("%w: %s cached", ErrCollision, tn)
	}

	stored, err := e.store.Exists(ctx, tn)
	if err != nil {
		return nil, infraErr("store.exists", err)
	}
	if stored {
		return nil, fmt.Errorf("%w: %s stored", ErrCollision, tn)
	}

	reserved, err := e.cache.SetIfAbsent(ctx, key, string(StateReserved), e.opts.Config.ReservationTTL)
	if err != nil {
		return nil, infraErr("cache.set_if_absent", err)
	}
	if !reserved {
		return nil, fmt.Errorf("%w: %s reserved concurrently", ErrCollision, tn)
	}

	// 预留之后的失败不做补偿删除，reserved 条目随 TTL 过期
	id, err := e.opts.IDs.NewString(ctx)
	if err != nil {
		return nil, fmt.Errorf("xtracking: record id: %w", err)
	}
	rec := &Record{
		ID:             id,
		TrackingNumber: tn,
		CreatedAt:      now,
		OrderCreatedAt: in.CreatedAt,
		Origin:         in.Origin,
		Destination:    in.Destination,
		Weight:         in.Weight,
		CustomerID:     in.CustomerID,
		CustomerName:   in.CustomerName,
		CustomerSlug:   in.CustomerSlug,
	}
	if err := e.store.Put(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s duplicate on put", ErrCollision, tn)
		}
		e.opts.Logger.Error(ctx, "persist reserved tracking number failed",
			xlog.Component(MetricsComponent), xlog.TrackingNumber(tn), xlog.Err(err))
		return nil, infraErr("store.put", err)
	}

	if err := e.cache.Set(ctx, key, string(StatePermanent), e.opts.Config.ReservationTTL); err != nil {
		e.opts.Logger.Warn(ctx, "promote tracking number to permanent failed",
			xlog.Component(MetricsComponent), xlog.TrackingNumber(tn), xlog.Err(err))
	}
	return rec, nil
}
