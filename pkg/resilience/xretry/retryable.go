package xretry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// DefaultRetryable 默认可重试判定
//
// 规则（按顺序）：
//   - nil：不重试
//   - 实现 RetryableError：以 Retryable() 为准
//   - context.Canceled：不重试（调用方放弃）
//   - context.DeadlineExceeded、net.Error 超时：重试
//   - ECONNRESET、ECONNREFUSED、EPIPE、ECONNABORTED：重试
//   - StatusCoder：5xx 与 429 重试，其余不重试
//   - 其他：不重试
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return IsRetryableStatus(sc.StatusCode())
	}
	return false
}

// IsRetryableStatus 判断 HTTP 状态码是否属于瞬时失败
func IsRetryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// IsTransient 是 DefaultRetryable 的别名，用于错误分类场景
func IsTransient(err error) bool {
	return DefaultRetryable(err)
}

// StatusError 携带状态码的错误，供 HTTP 客户端包装响应
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.Code)
	if e.Body == "" {
		return "xretry: unexpected status " + text
	}
	return "xretry: unexpected status " + text + ": " + e.Body
}

func (e *StatusError) StatusCode() int { return e.Code }
