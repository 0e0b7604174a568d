package xtracking

import (
	"context"
	"errors"

	"github.com/omeyang/xtrack/pkg/observability/xlog"
	"github.com/omeyang/xtrack/pkg/observability/xmetrics"
)

// Service 运单号服务门面，组合分配引擎与缓存一致性层。
//
// 分配成功后使快照缓存和搜索缓存失效，新记录在下一次搜索或列表请求中可见。
type Service struct {
	engine      *Engine
	consistency *Consistency
	opts        *Options
}

// NewService 创建服务，引擎与一致性层共享同一组 Option。
func NewService(cache Cache, store Store, opts ...Option) (*Service, error) {
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
	return &Service{
		engine:      newEngine(cache, store, o),
		consistency: newConsistency(cache, store, o),
		opts:        o,
	}, nil
}

// Allocate 分配运单号。失效派生缓存失败只记录日志，不影响分配结果。
func (s *Service) Allocate(ctx context.Context, in GenerationInput) (*Record, error) {
	rec, err := s.engine.Allocate(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.consistency.Invalidate(ctx); err != nil {
		s.opts.Logger.Warn(ctx, "invalidate derived caches after allocate failed",
			xlog.Component(MetricsComponent), xlog.TrackingNumber(rec.TrackingNumber), xlog.Err(err))
	}
	s.opts.Logger.Info(ctx, "tracking number allocated",
		xlog.Component(MetricsComponent), xlog.TrackingNumber(rec.TrackingNumber))
	return rec, nil
}

// Search 见 Consistency.Search。
func (s *Service) Search(ctx context.Context, criteria Criteria) (*ResultSet, error) {
	return s.consistency.Search(ctx, criteria)
}

// List 见 Consistency.List。
func (s *Service) List(ctx context.Context, page, size int64) (*Page, error) {
	return s.consistency.List(ctx, page, size)
}

// RefreshSnapshot 见 Consistency.RefreshSnapshot。
func (s *Service) RefreshSnapshot(ctx context.Context) error {
	return s.consistency.RefreshSnapshot(ctx)
}

// Invalidate 见 Consistency.Invalidate。
func (s *Service) Invalidate(ctx context.Context) error {
	return s.consistency.Invalidate(ctx)
}

// Lookup 按运单号精确查找，不存在时返回 ErrNotFound。
//
// 缓存中的空结果可能早于该运单号的分配，此时再向存储确认一次。
func (s *Service) Lookup(ctx context.Context, trackingNumber string) (info *RecordInfo, err error) {
	ctx, span := xmetrics.Start(ctx, s.opts.Observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: MetricsOpLookup,
		Kind:      xmetrics.KindInternal,
	})
	defer func() { span.End(xmetrics.Result{Err: notFoundAsOK(err)}) }()

	criteria := Criteria{TrackingNumber: trackingNumber}.Effective()
	if criteria.TrackingNumber == "" {
		return nil, ErrNotFound
	}
	rs, err := s.consistency.Search(ctx, criteria)
	if err != nil {
		return nil, err
	}
	for i := range rs.Results {
		if rs.Results[i].TrackingNumber == criteria.TrackingNumber {
			return &rs.Results[i], nil
		}
	}
	if rs.Source != SourceCache {
		return nil, ErrNotFound
	}

	rec, err := s.consistency.store.Get(ctx, criteria.TrackingNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, infraErr("store.get", err)
	}
	found := rec.Info()
	return &found, nil
}

// notFoundAsOK 未找到是正常结果，不计为失败。
func notFoundAsOK(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
