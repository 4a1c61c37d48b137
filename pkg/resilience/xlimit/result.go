package xlimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// 响应头
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Result 限流检查结果
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time

	// RetryAfter 距窗口重置的时长，仅在拒绝时非零
	RetryAfter time.Duration

	Policy string
	Key    string
}

// RetryAfterSeconds 向上取整的等待秒数，拒绝时至少为 1
func (r Result) RetryAfterSeconds() int64 {
	if r.Allowed {
		return 0
	}
	return max(1, int64(math.Ceil(r.RetryAfter.Seconds())))
}

// Err 拒绝时返回 *LimitError
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return &LimitError{Policy: r.Policy, Key: r.Key, RetryAfter: r.RetryAfter}
}

// Headers 限流响应头，X-RateLimit-Reset 为 Unix 秒
func (r Result) Headers() map[string]string {
	h := map[string]string{
		HeaderLimit:     strconv.FormatInt(r.Limit, 10),
		HeaderRemaining: strconv.FormatInt(r.Remaining, 10),
		HeaderReset:     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
	if !r.Allowed {
		h[HeaderRetryAfter] = strconv.FormatInt(r.RetryAfterSeconds(), 10)
	}
	return h
}

// SetHeaders 写入响应头，Limit <= 0 时跳过
func (r Result) SetHeaders(w http.ResponseWriter) {
	if r.Limit <= 0 {
		return
	}
	for k, v := range r.Headers() {
		w.Header().Set(k, v)
	}
}
