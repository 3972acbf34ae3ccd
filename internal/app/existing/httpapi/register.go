package httpapi

import (
	"context"
	"time"

	"bmcheck.local/internal/app/existing"
	"bmcheck.local/internal/platform/auth"
	"bmcheck.local/internal/platform/httpmiddleware"
	"bmcheck.local/internal/platform/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Checker 是 handler 依赖的查询能力，*existing.Service 满足它。
type Checker interface {
	Check(ctx context.Context, req existing.LookupRequest) (existing.Resolution, error)
	Invalidate(rawURL string)
	CancelOwner(ownerID string) bool
}

// Options 控制 API 的认证和限流；TokenService/Limiter 为 nil 时对应功能关闭。
type Options struct {
	TokenService auth.TokenService
	Limiter      *ratelimit.Limiter
	RateLimit    int
	RateWindow   time.Duration
}

// RegisterAPIRoutes 在 r 下挂载书签检查 API（通常 r 已经是 /api/v1）。
//
// 本包只做 HTTP <-> 领域的翻译；判断逻辑在 internal/app/existing。
func RegisterAPIRoutes(r chi.Router, svc Checker, opts Options) {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 60
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}

	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.AuthRequired(opts.TokenService))
		r.Use(httpmiddleware.RequireScope(auth.ScopeCheck))

		// 扩展在每次切换 tab 时都会查询，限流按 IP 计算
		r.With(httpmiddleware.RateLimit(opts.Limiter, "check", opts.RateLimit, opts.RateWindow)).
			Get("/bookmarks/check", NewCheckHandler(svc))
		r.Post("/bookmarks/invalidate", NewInvalidateHandler(svc))
		r.Delete("/owners/{owner}", NewCancelOwnerHandler(svc))
	})
}
