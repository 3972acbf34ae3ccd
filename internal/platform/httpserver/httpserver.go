package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bmcheck.local/internal/platform/config"
)

// New 创建对外服务。
func New(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg.Addr, cfg, handler)
}

// NewAdmin 创建 metrics/pprof 用的管理端服务，推荐只监听 127.0.0.1。
func NewAdmin(cfg config.Config, handler http.Handler) *http.Server {
	srv := newServer(cfg.AdminAddr, cfg, handler)
	// pprof profile 默认采样 30s，不能被 WriteTimeout 截断
	srv.WriteTimeout = 0
	return srv
}

func newServer(addr string, cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Run 启动 srv，stopCtx 结束后在 shutdownTimeout 内优雅关闭。
// 正常关闭返回 nil；监听失败或关闭超时返回对应错误。
func Run(stopCtx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stopCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}
