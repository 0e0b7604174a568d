package xlog

import (
	"log/slog"
	"time"

	"github.com/omeyang/xtrack/pkg/context/xctx"
)

// 常用属性 Key 常量，参考 OpenTelemetry Semantic Conventions。
const (
	KeyError      = "error"
	KeyStack      = "stack"
	KeyDuration   = "duration"
	KeyCount      = "count"
	KeyRequestID  = xctx.KeyRequestID
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatusCode = "status_code"
	KeyClientIP   = "client_ip"
	KeyComponent  = "component"
	KeyOperation  = "operation"

	// KeyTrackingNumber 运单号
	KeyTrackingNumber = "tracking_number"
	// KeyAttempt 生成重试的尝试序号（从 1 开始）
	KeyAttempt = "attempt"
	// KeySource 结果来源（cache / store）
	KeySource = "source"
)

// Err 创建错误属性。err 为 nil 时返回空属性（会被 slog 忽略）。
//
//	if err != nil {
//	    logger.Error(ctx, "operation failed", xlog.Err(err))
//	}
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建人类可读的耗时属性（如 "1.5s"）
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 创建组件名属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 创建操作名属性
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Count 创建计数属性
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// StatusCode 创建 HTTP 状态码属性
func StatusCode(code int) slog.Attr {
	return slog.Int(KeyStatusCode, code)
}

// Method 创建 HTTP 方法属性
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path 创建请求路径属性
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// ClientIP 创建客户端 IP 属性
func ClientIP(ip string) slog.Attr {
	return slog.String(KeyClientIP, ip)
}

// TrackingNumber 创建运单号属性
func TrackingNumber(tn string) slog.Attr {
	return slog.String(KeyTrackingNumber, tn)
}

// Attempt 创建尝试序号属性
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Source 创建结果来源属性
func Source(s string) slog.Attr {
	return slog.String(KeySource, s)
}
