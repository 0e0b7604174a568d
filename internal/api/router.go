package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omeyang/xtrack/pkg/observability/xlog"
)

type route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// RouterOption 路由配置选项。
type RouterOption func(*routerOptions)

type routerOptions struct {
	cors *CORSConfig
}

// WithCORS 启用跨域中间件，AllowOrigins 为空时忽略。
func WithCORS(cfg CORSConfig) RouterOption {
	return func(o *routerOptions) {
		if len(cfg.AllowOrigins) > 0 {
			o.cors = &cfg
		}
	}
}

// NewRouter 创建 gin 引擎并注册中间件与路由。
// logger 为 nil 时使用 xlog.Default()。
func NewRouter(h *Handler, logger xlog.Logger, opts ...RouterOption) *gin.Engine {
	if logger == nil {
		logger = xlog.Default()
	}
	o := &routerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	// Recovery 必须最先注册，才能捕获后续中间件中的 panic
	engine.Use(Recovery(logger))
	if o.cors != nil {
		// 预检请求在 CORS 中直接返回，不进入访问日志
		engine.Use(CORS(*o.cors))
	}
	engine.Use(RequestID(), AccessLog(logger))

	engine.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, CodeNotFound, nil, "Route not found")
	})

	engine.GET("/health", h.Health)

	tracking := engine.Group("/api/v1/tracking")
	addRoutes(tracking, []route{
		{Method: http.MethodGet, Path: "/next-tracking-number", Handler: h.Next},
		{Method: http.MethodGet, Path: "/search", Handler: h.Search},
		{Method: http.MethodGet, Path: "/all", Handler: h.List},
		{Method: http.MethodGet, Path: "/:trackingNumber", Handler: h.Get},
		{Method: http.MethodDelete, Path: "/cache", Handler: h.InvalidateCache},
	})
	return engine
}

func addRoutes(g *gin.RouterGroup, rs []route) {
	for _, r := range rs {
		g.Handle(r.Method, r.Path, r.Handler)
	}
}
