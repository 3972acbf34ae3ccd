package httpmiddleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// RequestID 沿用上游传入的 X-Request-ID，没有就生成一个，并回写到响应头。
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = GenerateRequestID()
			if id == "" {
				id = strconv.FormatInt(time.Now().UnixNano(), 10)
			}
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func GenerateRequestID() string {
	src := make([]byte, 16)
	if _, err := rand.Read(src); err != nil {
		return ""
	}
	return hex.EncodeToString(src) // 32 个十六进制字符
}
