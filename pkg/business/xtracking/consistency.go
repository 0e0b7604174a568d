package xtracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xtrack/internal/storageopt"
	"github.com/omeyang/xtrack/pkg/observability/xlog"
	"github.com/omeyang/xtrack/pkg/observability/xmetrics"
)

// Consistency 维护全量快照缓存和搜索结果缓存。
//
// 缓存只做整体重建或整体删除，不做局部修改。缓存读失败和反序列化失败
// 都按未命中处理，写失败只记录日志；只有存储故障会返回给调用方。
type Consistency struct {
	cache Cache
	store Store
	opts  *Options

	// refreshes 合并并发的快照重建
	refreshes singleflight.Group
}

// NewConsistency 创建缓存一致性层。
func NewConsistency(cache Cache, store Store, opts ...Option) (*Consistency, error) {
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
	return newConsistency(cache, store, o), nil
}

func newConsistency(cache Cache, store Store, o *Options) *Consistency {
	return &Consistency{cache: cache, store: store, opts: o}
}

func (c *Consistency) start(ctx context.Context, op string, attrs ...xmetrics.Attr) (context.Context, xmetrics.Span) {
	return xmetrics.Start(ctx, c.opts.Observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: op,
		Kind:      xmetrics.KindInternal,
		Attrs:     attrs,
	})
}

// =============================================================================
// 搜索
// =============================================================================

// searchKey 由生效条件计算搜索缓存 key：search:<hex(xxhash64(tn:name:slug:origin:dest))>。
//
// 字段以 ":" 拼接后取哈希，字段值自身含 ":" 时不同条件可能得到同一 key，
// 64 位哈希本身也存在碰撞可能。两者都会让一次搜索读到另一组条件的缓存结果，
// 最长持续一个 SearchTTL。
func searchKey(eff Criteria) string {
	h := xxhash.New()
	_, _ = h.WriteString(eff.TrackingNumber)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(eff.CustomerName)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(eff.CustomerSlug)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(eff.Origin)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(eff.Destination)
	return SearchKeyPrefix + strconv.FormatUint(h.Sum64(), 16)
}

// Search 按条件搜索，优先读搜索缓存，未命中时查询存储并回填。
func (c *Consistency) Search(ctx context.Context, criteria Criteria) (rs *ResultSet, err error) {
	eff := criteria.Effective()
	ctx, span := c.start(ctx, MetricsOpSearch)
	defer func() {
		var attrs []xmetrics.Attr
		if rs != nil {
			attrs = []xmetrics.Attr{
				xmetrics.String(xmetrics.AttrSource, string(rs.Source)),
				xmetrics.Int(xmetrics.AttrResultCount, rs.TotalFound),
			}
			c.opts.Logger.Debug(ctx, "search served",
				xlog.Component(MetricsComponent), xlog.Source(string(rs.Source)),
				xlog.Count(int64(rs.TotalFound)))
		}
		span.End(xmetrics.Result{Err: err, Attrs: attrs})
	}()

	key := searchKey(eff)
	if cached, ok := c.cachedResult(ctx, key); ok {
		cached.Source = SourceCache
		return cached, nil
	}

	var limit int64
	if eff == (Criteria{}) {
		limit = c.opts.Config.SearchLimit
	}
	records, err := c.store.Query(ctx, eff, limit)
	if err != nil {
		return nil, infraErr("store.query", err)
	}

	rs = newResultSet(infos(records), SourceStore, c.opts.Clock())
	c.markPermanent(ctx, records)
	c.writeJSON(ctx, key, rs, c.opts.Config.SearchTTL)
	return rs, nil
}

// cachedResult 读取搜索缓存，读失败或反序列化失败视为未命中。
func (c *Consistency) cachedResult(ctx context.Context, key string) (*ResultSet, bool) {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.opts.Logger.Warn(ctx, "read search cache failed",
			xlog.Component(MetricsComponent), xlog.Err(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var rs ResultSet
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		c.opts.Logger.Debug(ctx, "discard undecodable search cache",
			xlog.Component(MetricsComponent), xlog.Err(fmt.Errorf("%w: %w", ErrCacheDecode, err)))
		return nil, false
	}
	return &rs, true
}

// markPermanent 将存储中确认存在的运单号刷新为 permanent，失败只记录日志。
func (c *Consistency) markPermanent(ctx context.Context, records []Record) {
	if len(records) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(c.opts.Config.RefreshConcurrency)
	for i := range records {
		tn := records[i].TrackingNumber
		g.Go(func() error {
			if err := c.cache.Set(ctx, trackingKey(tn), string(StatePermanent), c.opts.Config.ReservationTTL); err != nil {
				c.opts.Logger.Warn(ctx, "refresh tracking cache state failed",
					xlog.Component(MetricsComponent), xlog.TrackingNumber(tn), xlog.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Consistency) writeJSON(ctx context.Context, key string, v any, ttl time.Duration) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.opts.Logger.Error(ctx, "encode cache value failed",
			xlog.Component(MetricsComponent), xlog.Err(err))
		return false
	}
	if err := c.cache.Set(ctx, key, string(data), ttl); err != nil {
		c.opts.Logger.Warn(ctx, "write cache failed",
			xlog.Component(MetricsComponent), slog.String("key", key), xlog.Err(err))
		return false
	}
	return true
}

// =============================================================================
// 列表
// =============================================================================

// RefreshSnapshot 从存储读取全部记录（CreatedAt 降序）并整体重写快照缓存。
// 并发调用合并为一次重建。
func (c *Consistency) RefreshSnapshot(ctx context.Context) (err error) {
	ctx, span := c.start(ctx, MetricsOpRefreshSnapshot)
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	_, err, _ = c.refreshes.Do(SnapshotKey, func() (any, error) {
		// 不随单个调用方取消，合并后的重建对所有等待者生效
		rctx := context.WithoutCancel(ctx)
		records, err := c.store.List(rctx, ListOptions{OrderBy: OrderCreatedAtDesc})
		if err != nil {
			return nil, infraErr("store.list", err)
		}
		data, err := json.Marshal(infos(records))
		if err != nil {
			return nil, fmt.Errorf("xtracking: encode snapshot: %w", err)
		}
		if err := c.cache.Set(rctx, SnapshotKey, string(data), c.opts.Config.SnapshotTTL); err != nil {
			return nil, infraErr("cache.set", err)
		}
		return nil, nil
	})
	return err
}

// List 返回第 page 页（从 0 开始），每页 size 条。
//
// 先尽力刷新快照，再从快照切片；快照缺失、不可读、无法反序列化或页起点越界时
// 回落到存储分页查询。Page.FromCache 标识数据来源。
func (c *Consistency) List(ctx context.Context, page, size int64) (p *Page, err error) {
	offset, err := storageopt.ValidatePagination(page, size, MaxPageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPage, err)
	}

	ctx, span := c.start(ctx, MetricsOpList)
	defer func() {
		var attrs []xmetrics.Attr
		if p != nil {
			attrs = []xmetrics.Attr{
				xmetrics.String(xmetrics.AttrSource, string(pageSource(p))),
				xmetrics.Int(xmetrics.AttrResultCount, len(p.Data)),
			}
		}
		span.End(xmetrics.Result{Err: err, Attrs: attrs})
	}()

	if err := c.RefreshSnapshot(ctx); err != nil {
		c.opts.Logger.Warn(ctx, "refresh snapshot failed",
			xlog.Component(MetricsComponent), xlog.Err(err))
	}

	if p, ok := c.pageFromSnapshot(ctx, page, size, offset); ok {
		return p, nil
	}
	return c.pageFromStore(ctx, page, size, offset)
}

func (c *Consistency) pageFromSnapshot(ctx context.Context, page, size, offset int64) (*Page, bool) {
	raw, ok, err := c.cache.Get(ctx, SnapshotKey)
	if err != nil {
		c.opts.Logger.Warn(ctx, "read snapshot failed",
			xlog.Component(MetricsComponent), xlog.Err(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var all []RecordInfo
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		c.opts.Logger.Debug(ctx, "discard undecodable snapshot",
			xlog.Component(MetricsComponent), xlog.Err(fmt.Errorf("%w: %w", ErrCacheDecode, err)))
		return nil, false
	}
	total := int64(len(all))
	start, end, ok := storageopt.Window(total, offset, size)
	if !ok {
		return nil, false
	}
	data := make([]RecordInfo, end-start)
	copy(data, all[start:end])
	return c.newPage(data, page, size, total, true), true
}

func (c *Consistency) pageFromStore(ctx context.Context, page, size, offset int64) (*Page, error) {
	records, err := c.store.List(ctx, ListOptions{OrderBy: OrderCreatedAtDesc, Skip: offset, Take: size})
	if err != nil {
		return nil, infraErr("store.list", err)
	}
	total, err := c.store.Count(ctx)
	if err != nil {
		return nil, infraErr("store.count", err)
	}
	return c.newPage(infos(records), page, size, total, false), nil
}

func pageSource(p *Page) Source {
	if p.FromCache {
		return SourceCache
	}
	return SourceStore
}

func (c *Consistency) newPage(data []RecordInfo, page, size, total int64, fromCache bool) *Page {
	totalPages := storageopt.CalculateTotalPages(total, size)
	return &Page{
		Data:          data,
		CurrentPage:   page,
		PageSize:      size,
		TotalElements: total,
		TotalPages:    totalPages,
		HasNext:       page < totalPages-1,
		HasPrevious:   page > 0,
		RetrievedAt:   c.opts.Clock(),
		FromCache:     fromCache,
	}
}

// =============================================================================
// 失效
// =============================================================================

// Invalidate 删除快照缓存和全部 search:* 缓存。
func (c *Consistency) Invalidate(ctx context.Context) (err error) {
	ctx, span := c.start(ctx, MetricsOpInvalidate)
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	// 扫描失败时仍删除快照
	keys, scanErr := c.cache.KeysMatching(ctx, SearchKeyPrefix+"*")
	if scanErr != nil {
		scanErr = infraErr("cache.keys_matching", scanErr)
	}
	keys = append(keys, SnapshotKey)
	if err := c.cache.Delete(ctx, keys...); err != nil {
		return errors.Join(scanErr, infraErr("cache.delete", err))
	}
	if scanErr != nil {
		return scanErr
	}
	c.opts.Logger.Debug(ctx, "derived caches invalidated",
		xlog.Component(MetricsComponent), xlog.Count(int64(len(keys))))
	return nil
}
