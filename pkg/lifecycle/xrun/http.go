package xrun

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server *http.Server 满足此接口。
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServer ctx 取消后在 shutdownTimeout 内优雅关闭 server，返回 Shutdown 的结果。
// shutdownTimeout <= 0 时等待所有在途请求结束。server 被外部关闭时返回 nil。
func HTTPServer(server Server, shutdownTimeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if server == nil {
			return ErrNilServer
		}
		served := make(chan error, 1)
		go func() { served <- server.ListenAndServe() }()

		select {
		case err := <-served:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		sctx := context.WithoutCancel(ctx)
		if shutdownTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(sctx, shutdownTimeout)
			defer cancel()
		}
		err := server.Shutdown(sctx)
		// 等待 ListenAndServe 返回
		if serveErr := <-served; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
			err = serveErr
		}
		return err
	}
}
