package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xtrack/pkg/business/xtracking"
	"github.com/omeyang/xtrack/pkg/context/xctx"
)

// Tracker 运单号服务，*xtracking.Service 满足此接口。
type Tracker interface {
	Allocate(ctx context.Context, in xtracking.GenerationInput) (*xtracking.Record, error)
	Search(ctx context.Context, criteria xtracking.Criteria) (*xtracking.ResultSet, error)
	List(ctx context.Context, page, size int64) (*xtracking.Page, error)
	Lookup(ctx context.Context, trackingNumber string) (*xtracking.RecordInfo, error)
	Invalidate(ctx context.Context) error
}

// HealthChecker 依赖的健康检查，xcache.Redis 与 *trackstore.Store 满足此接口。
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler 运单号接口处理器。
type Handler struct {
	tracker       Tracker
	checks        map[string]HealthChecker
	healthTimeout time.Duration
}

// NewHandler 创建处理器，checks 以依赖名为 key。
func NewHandler(tracker Tracker, checks map[string]HealthChecker) *Handler {
	return &Handler{
		tracker:       tracker,
		checks:        checks,
		healthTimeout: 3 * time.Second,
	}
}

// Next 分配下一个运单号。
func (h *Handler) Next(c *gin.Context) {
	var req NextRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abortInvalid(c, err)
		return
	}
	in, err := req.ToInput()
	if err != nil {
		abortInvalid(c, err)
		return
	}
	ctx := c.Request.Context()
	// 分配过程中的日志带上客户字段
	if withCustomer, err := xctx.WithCustomer(ctx, in.CustomerID.String(), in.CustomerSlug); err == nil {
		ctx = withCustomer
	}
	rec, err := h.tracker.Allocate(ctx, in)
	if err != nil {
		abortServiceError(c, err, "An unexpected error occurred while generating tracking number")
		return
	}
	c.JSON(http.StatusOK, newAllocateResponse(rec))
}

// Search 多字段搜索。
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abortInvalid(c, err)
		return
	}
	rs, err := h.tracker.Search(c.Request.Context(), req.Criteria())
	if err != nil {
		abortServiceError(c, err, "An unexpected error occurred while searching tracking numbers")
		return
	}
	c.JSON(http.StatusOK, rs)
}

// List 分页列出全部运单号。
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abortInvalid(c, err)
		return
	}
	page, err := h.tracker.List(c.Request.Context(), req.Page, req.Size)
	if err != nil {
		abortServiceError(c, err, "An unexpected error occurred while listing tracking numbers")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get 按运单号查询单条记录。
func (h *Handler) Get(c *gin.Context) {
	info, err := h.tracker.Lookup(c.Request.Context(), c.Param("trackingNumber"))
	if err != nil {
		abortServiceError(c, err, "An unexpected error occurred while looking up tracking number")
		return
	}
	c.JSON(http.StatusOK, info)
}

// InvalidateCache 删除快照和搜索缓存。
func (h *Handler) InvalidateCache(c *gin.Context) {
	if err := h.tracker.Invalidate(c.Request.Context()); err != nil {
		abortServiceError(c, err, "Failed to invalidate caches")
		return
	}
	c.Status(http.StatusNoContent)
}

// Health 并发检查全部依赖，任一失败返回 503。
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	errs := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		check := h.checks[name]
		g.Go(func() error {
			errs[i] = check.Health(ctx)
			return nil
		})
	}
	_ = g.Wait()

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for i, name := range names {
		results[name] = "ok"
		if errs[i] != nil {
			status = http.StatusServiceUnavailable
			results[name] = errs[i].Error()
			_ = c.Error(errs[i])
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}
