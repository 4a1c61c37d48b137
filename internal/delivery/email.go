package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/omeyang/xguard/pkg/mq/xqueue"
	"github.com/omeyang/xguard/pkg/observability/xlog"
	"github.com/omeyang/xguard/pkg/observability/xmetrics"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
)

// Email 一封待发送的邮件
type Email struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Template string `json:"template,omitempty"`
	// Reference 关联的业务单号（订单号、SKU），用于去重与排查
	Reference string `json:"reference,omitempty"`
}

// Validate 校验必填字段
func (e Email) Validate() error {
	if !strings.Contains(e.To, "@") {
		return fmt.Errorf("%w: recipient %q", ErrInvalidMessage, e.To)
	}
	if e.Subject == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidMessage)
	}
	return nil
}

// Mailer 邮件发送通道
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// HTTPMailer 通过邮件服务商的 HTTP API 发送
type HTTPMailer struct {
	endpoint string
	apiKey   string
	poster   *poster
}

// NewHTTPMailer 创建 HTTP 邮件通道，client 为 nil 时使用 10s 超时的默认客户端
func NewHTTPMailer(endpoint, apiKey string, client *http.Client, observer xmetrics.Observer) *HTTPMailer {
	return &HTTPMailer{endpoint: endpoint, apiKey: apiKey, poster: newPoster(client, observer, "mailer")}
}

// Send 发送邮件
func (m *HTTPMailer) Send(ctx context.Context, msg Email) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("delivery: encode email: %w", err)
	}
	var headers map[string]string
	if m.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + m.apiKey}
	}
	return m.poster.post(ctx, m.endpoint, headers, body)
}

// LogMailer 只记录日志，用于未配置邮件服务商的环境
type LogMailer struct {
	Logger xlog.Logger
}

// Send 记录一条日志
func (m LogMailer) Send(ctx context.Context, msg Email) error {
	logger := m.Logger
	if logger == nil {
		logger = xlog.Default()
	}
	logger.Info(ctx, "email sent to log", xlog.Component("mailer"),
		xlog.Key(msg.To), xlog.Operation(msg.Subject))
	return nil
}

// EmailSender 受断路器保护的邮件发送
type EmailSender struct {
	guard  *xbreaker.Guard
	mailer Mailer
	queue  xbreaker.Enqueuer
	logger xlog.Logger
}

// NewEmailSender 创建发送器，queue 为断路器打开时的降级目标
func NewEmailSender(guard *xbreaker.Guard, mailer Mailer, queue xbreaker.Enqueuer, logger xlog.Logger) (*EmailSender, error) {
	if guard == nil || mailer == nil || queue == nil {
		return nil, ErrNilDependency
	}
	if logger == nil {
		logger = xlog.Discard()
	}
	return &EmailSender{guard: guard, mailer: mailer, queue: queue, logger: logger}, nil
}

// Send 在请求路径上发送邮件。
//
// 断路器打开时写入队列并返回 queued=true；依赖本身出错时原样返回错误。
func (s *EmailSender) Send(ctx context.Context, msg Email) (queued bool, err error) {
	if err := msg.Validate(); err != nil {
		return false, err
	}
	sent, err := xbreaker.Call(ctx, s.guard, func(ctx context.Context) (bool, error) {
		return true, s.mailer.Send(ctx, msg)
	}, xbreaker.Enqueue[bool](s.queue, KindEmail, msg))
	if err != nil {
		return false, err
	}
	if !sent {
		s.logger.Warn(ctx, "email deferred to queue", xlog.Name(s.guard.Breaker().Name()), xlog.Key(msg.To))
	}
	return !sent, nil
}

// Handle 处理 email 任务
func (s *EmailSender) Handle(ctx context.Context, job *xqueue.Job) error {
	var msg Email
	if err := decode(job, &msg); err != nil {
		return err
	}
	return forQueue(s.guard.Do(ctx, func(ctx context.Context) error {
		return s.mailer.Send(ctx, msg)
	}))
}
