package httpmiddleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"bmcheck.local/internal/platform/ratelimit"
)

var rateLimitMemberSeq uint64

// ClientIP 获取“真实客户端 IP”（用于限流/审计/统计）。
//
// 只有当请求来自“可信代理”（如同机 Caddy / 内网 / docker bridge）时，才信任转发头；
// 否则客户端可以伪造 X-Forwarded-For 绕过按 IP 的限流。
func ClientIP(req *http.Request) string {
	remoteHost, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		remoteHost = req.RemoteAddr
	}
	remoteIP := net.ParseIP(remoteHost)

	if remoteIP == nil || !isTrustedProxy(remoteIP) {
		return remoteHost
	}

	for _, h := range forwardedHeaders {
		v := req.Header.Get(h)
		// X-Forwarded-For 的第一个 IP 是原始客户端，后面是经过的代理。
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		if v = strings.TrimSpace(v); net.ParseIP(v) != nil {
			return v
		}
	}
	return remoteHost
}

// 按优先级排列：Cloudflare -> Caddy -> app 时 CF-Connecting-IP 最可靠。
var forwardedHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// 同机反代（loopback）和私网（RFC1918、IPv6 ULA，即 docker bridge / 内网转发）。
func isTrustedProxy(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate()
}

// RateLimit 按客户端 IP 做滑动窗口限流。limiter 为 nil 时不限流；redis 故障时放行。
func RateLimit(limiter *ratelimit.Limiter, prefix string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "rl:" + prefix + ":" + ClientIP(r)

			// member 必须“每次请求唯一”，否则 ZADD 会覆盖同一个 member。
			// 在 Windows/虚拟化环境中 time.Now().UnixNano() 可能短时间内重复；加序列号保证唯一。
			member := strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatUint(atomic.AddUint64(&rateLimitMemberSeq, 1), 10)
			rlCtx, cancel := context.WithTimeout(r.Context(), 50*time.Millisecond)
			d, err := limiter.Allow(rlCtx, key, limit, window, member)
			cancel()
			if err != nil {
				slog.Error("rate limit check failed", "err", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				if d.RetryAfter > 0 {
					// 标准语义：Retry-After 单位是秒。
					secs := int64((d.RetryAfter + time.Second - 1) / time.Second) // ceil
					w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
				}
				WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
