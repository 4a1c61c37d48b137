package delivery

import (
	"errors"

	"github.com/omeyang/xguard/pkg/mq/xqueue"
)

// Handlers 各任务类型的处理器，nil 字段不注册
type Handlers struct {
	Email      *EmailSender
	Webhook    *WebhookSender
	StockAlert *StockAlerter
}

// Register 把处理器注册到队列
func Register(q *xqueue.Queue, h Handlers) error {
	var errs []error
	if h.Email != nil {
		errs = append(errs, q.Register(KindEmail, h.Email.Handle))
	}
	if h.Webhook != nil {
		errs = append(errs, q.Register(KindWebhook, h.Webhook.Handle))
	}
	if h.StockAlert != nil {
		errs = append(errs, q.Register(KindStockAlertScan, h.StockAlert.Handle))
	}
	return errors.Join(errs...)
}
