package delivery

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/omeyang/xguard/pkg/mq/xqueue"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

var (
	// ErrInvalidMessage 消息缺少必填字段
	ErrInvalidMessage = errors.New("delivery: invalid message")

	// ErrNilDependency 构造时缺少依赖
	ErrNilDependency = errors.New("delivery: nil dependency")
)

// StatusError 下游返回了非 2xx 状态码
type StatusError struct {
	Target string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("delivery: %s responded %d %s", e.Target, e.Code, http.StatusText(e.Code))
}

// StatusCode 供 xretry 按状态码判定是否重试
func (e *StatusError) StatusCode() int { return e.Code }

// IsClientError 判断错误是否为下游拒绝请求（4xx，429 除外）。
// 这类错误说明请求本身有问题，不应计入断路器失败。
func IsClientError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}

// BreakerSuccess 断路器成功判定：nil 与客户端错误都不计为依赖失败
func BreakerSuccess(err error) bool {
	return err == nil || IsClientError(err)
}

// forQueue 把投递错误转换为队列语义：
// 断路器打开时稍后重试，客户端错误永久失败，其余交由默认判定。
func forQueue(err error) error {
	switch {
	case err == nil:
		return nil
	case xbreaker.IsOpen(err):
		return xretry.NewTemporaryError(err)
	case IsClientError(err):
		return xretry.NewPermanentError(err)
	default:
		return err
	}
}

// decode 解码任务载荷并校验，载荷损坏的任务重试无意义，直接判为永久失败
func decode[T interface{ Validate() error }](job *xqueue.Job, v T) error {
	if err := job.Decode(v); err != nil {
		return xretry.NewPermanentError(fmt.Errorf("%w: %s: %w", ErrInvalidMessage, job.ID, err))
	}
	if err := v.Validate(); err != nil {
		return xretry.NewPermanentError(err)
	}
	return nil
}
