package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/omeyang/xguard/pkg/mq/xqueue"
	"github.com/omeyang/xguard/pkg/observability/xmetrics"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

// Webhook 发往商户回调地址的事件
type Webhook struct {
	URL     string            `json:"url"`
	Event   string            `json:"event"`
	Body    json.RawMessage   `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Validate 校验必填字段
func (w Webhook) Validate() error {
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url %q", ErrInvalidMessage, w.URL)
	}
	if w.Event == "" {
		return fmt.Errorf("%w: empty event", ErrInvalidMessage)
	}
	if len(w.Body) > 0 && !json.Valid(w.Body) {
		return fmt.Errorf("%w: body is not json", ErrInvalidMessage)
	}
	return nil
}

// host 断路器按目标主机隔离，一个商户的故障不影响其他商户
func (w Webhook) host() string {
	u, err := url.Parse(w.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// WebhookSender 按主机分别断路的 Webhook 投递
type WebhookSender struct {
	breakers *xbreaker.Registry
	retry    *xretry.Executor
	poster   *poster
}

// NewWebhookSender 创建投递器，retry 为 nil 时不在断路器内重试
func NewWebhookSender(breakers *xbreaker.Registry, retry *xretry.Executor, client *http.Client, observer xmetrics.Observer) (*WebhookSender, error) {
	if breakers == nil {
		return nil, ErrNilDependency
	}
	return &WebhookSender{breakers: breakers, retry: retry, poster: newPoster(client, observer, "webhook")}, nil
}

// BreakerName 返回目标主机对应的断路器名称
func BreakerName(host string) string { return KindWebhook + ":" + host }

// Deliver 投递一次 Webhook
func (s *WebhookSender) Deliver(ctx context.Context, w Webhook) error {
	if err := w.Validate(); err != nil {
		return err
	}
	body := w.Body
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	headers := map[string]string{"X-Event": w.Event}
	for k, v := range w.Headers {
		headers[k] = v
	}

	guard := xbreaker.NewGuard(s.breakers.Get(BreakerName(w.host())), s.retry)
	return guard.Do(ctx, func(ctx context.Context) error {
		err := s.poster.post(ctx, w.URL, headers, body)
		if IsClientError(err) {
			// 4xx 重试无用
			return xretry.NewPermanentError(err)
		}
		return err
	})
}

// Handle 处理 webhook 任务，同一任务的重试携带相同的 X-Delivery-ID
func (s *WebhookSender) Handle(ctx context.Context, job *xqueue.Job) error {
	var w Webhook
	if err := decode(job, &w); err != nil {
		return err
	}
	if w.Headers == nil {
		w.Headers = make(map[string]string, 1)
	}
	w.Headers["X-Delivery-ID"] = job.ID
	return forQueue(s.Deliver(ctx, w))
}
