package httpmiddleware

import (
	"encoding/json"
	"net/http"
)

const RequestIDHeader = "X-Request-ID"

// ErrorResponse 是所有 JSON 错误响应的格式。
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError 写出 JSON 错误；request id 来自 RequestID 中间件。
func WriteError(w http.ResponseWriter, r *http.Request, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: r.Header.Get(RequestIDHeader), //没有就空
	})
}
