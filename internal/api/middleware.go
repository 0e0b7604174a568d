package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/omeyang/xtrack/pkg/context/xctx"
	"github.com/omeyang/xtrack/pkg/observability/xlog"
)

// HeaderRequestID 请求 ID 头，客户端提供时沿用，否则生成。
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 128

// Recovery 捕获 handler 中的 panic，记录堆栈并返回 500。
// 必须位于中间件链最外层。
func Recovery(logger xlog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Stack(c.Request.Context(), "recovered from panic",
					xlog.Err(fmt.Errorf("panic: %v", r)), xlog.Path(c.Request.URL.Path))
				abortWithError(c, http.StatusInternalServerError, CodeInternalError, nil,
					"Internal server error")
			}
		}()
		c.Next()
	}
}

// RequestID 将请求 ID 与追踪字段注入请求 context，并回写到响应头。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(HeaderRequestID); id != "" && len(id) <= maxRequestIDLen {
			if withID, err := xctx.WithRequestID(ctx, id); err == nil {
				ctx = withID
			}
		}
		if ensured, err := xctx.EnsureTrace(ctx); err == nil {
			ctx = ensured
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, xctx.RequestID(ctx))
		c.Next()
	}
}

// AccessLog 请求结束后记录一条访问日志，5xx 记为 Error，4xx 记为 Warn。
func AccessLog(logger xlog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			xlog.Method(c.Request.Method),
			xlog.Path(c.Request.URL.Path),
			xlog.StatusCode(status),
			xlog.Duration(time.Since(start)),
			xlog.ClientIP(c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String(xlog.KeyError, c.Errors.String()))
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "request completed", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn(ctx, "request completed", attrs...)
		default:
			logger.Info(ctx, "request completed", attrs...)
		}
	}
}

// CORSConfig 跨域配置。AllowOrigins 为空时不启用跨域中间件。
type CORSConfig struct {
	AllowOrigins     []string      `koanf:"allow_origins"`
	AllowHeaders     []string      `koanf:"allow_headers"`
	AllowCredentials bool          `koanf:"allow_credentials"`
	MaxAge           time.Duration `koanf:"max_age"`
}

// CORS 按配置生成跨域中间件。接口只读或删除缓存，只放行 GET、DELETE 与预检请求。
func CORS(cfg CORSConfig) gin.HandlerFunc {
	headers := cfg.AllowHeaders
	if len(headers) == 0 {
		headers = []string{"Origin", "Content-Type", "Accept", HeaderRequestID}
	}
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     headers,
		ExposeHeaders:    []string{HeaderRequestID},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
