package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork 传输层失败（连接被拒绝、DNS、连接中断等）。
	ErrNetwork = errors.New("remote network failure")
	// ErrServerError 服务端返回非成功状态码或非 success 的响应体。
	ErrServerError = errors.New("remote server error")
	// ErrAborted 请求在完成前被取消或超时。
	ErrAborted = errors.New("remote request aborted")
)

// StatusError 记录服务端失败的细节，errors.Is(err, ErrServerError) 为 true。
type StatusError struct {
	Op     string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: remote status %q (http %d)", e.Op, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: remote http %d: %s", e.Op, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrServerError
}
