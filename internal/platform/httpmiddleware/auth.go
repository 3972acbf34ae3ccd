package httpmiddleware

import (
	"net/http"
	"strings"

	"bmcheck.local/internal/platform/auth"
)

// parseBearer 解析 Authorization header 中的 Bearer token
// 返回 token 字符串，如果格式不正确返回空字符串
func parseBearer(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// AuthRequired 要求请求必须携带有效的 JWT token。ts 为 nil 时不做认证。
func AuthRequired(ts auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if ts == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				WriteError(w, r, http.StatusUnauthorized, "missing authorization header")
				return
			}
			token := parseBearer(header)
			if token == "" {
				WriteError(w, r, http.StatusUnauthorized, "invalid authorization format")
				return
			}
			claims, err := ts.Verify(token)
			if err != nil {
				WriteError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := auth.WithIdentity(r.Context(), auth.Identity{
				ClientID: claims.ClientID,
				Scope:    claims.Scope,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope 要求调用方具有指定 scope；admin 拥有全部权限。
// 未启用认证（请求里没有 Identity）时放行。
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.GetIdentity(r.Context())
			if ok && id.Scope != scope && id.Scope != auth.ScopeAdmin {
				WriteError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
