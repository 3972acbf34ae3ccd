package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"bmcheck.local/internal/platform/auth"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", "err", err)
	}
}

// ownerOf 取第一个非空的 owner；都为空时返回 ""，该请求不参与 owner 取代。
// 认证开启时 owner 带上 client id 前缀，不同客户端之间不会互相取消请求。
func ownerOf(r *http.Request, candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c == "" {
			continue
		}
		if id, ok := auth.GetIdentity(r.Context()); ok {
			return id.ClientID + "/" + c
		}
		return c
	}
	return ""
}
