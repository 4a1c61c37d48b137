package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xguard/pkg/mq/xqueue"
	"github.com/omeyang/xguard/pkg/observability/xlog"
)

// StockLevel 单个 SKU 的库存
type StockLevel struct {
	SKU      string
	Quantity int64
}

// StockSource 库存数据来源
type StockSource interface {
	// LowStock 返回库存不高于 threshold 的 SKU
	LowStock(ctx context.Context, threshold int64) ([]StockLevel, error)
}

// RedisStockSource 从 Redis hash（sku -> 数量）读取库存
type RedisStockSource struct {
	client redis.UniversalClient
	key    string
}

// DefaultStockKey 默认库存 hash 键
const DefaultStockKey = "inventory:stock"

// NewRedisStockSource 创建库存来源，key 为空时使用 DefaultStockKey
func NewRedisStockSource(client redis.UniversalClient, key string) (*RedisStockSource, error) {
	if client == nil {
		return nil, ErrNilDependency
	}
	if key == "" {
		key = DefaultStockKey
	}
	return &RedisStockSource{client: client, key: key}, nil
}

// LowStock 实现 StockSource，无法解析的数量被跳过
func (s *RedisStockSource) LowStock(ctx context.Context, threshold int64) ([]StockLevel, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("delivery: read stock: %w", err)
	}
	var out []StockLevel
	for sku, raw := range all {
		qty, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || qty > threshold {
			continue
		}
		out = append(out, StockLevel{SKU: sku, Quantity: qty})
	}
	return out, nil
}

// ScanRequest stock-alert-scan 任务载荷
type ScanRequest struct {
	Threshold int64     `json:"threshold"`
	Recipient string    `json:"recipient"`
	Tick      time.Time `json:"tick"`
}

// Validate 校验载荷
func (r ScanRequest) Validate() error {
	if r.Threshold < 0 {
		return fmt.Errorf("%w: negative threshold", ErrInvalidMessage)
	}
	return Email{To: r.Recipient, Subject: "-"}.Validate()
}

// Enqueuer 带选项的任务写入，xqueue.Queue 实现了该接口
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, opts ...xqueue.EnqueueOption) (string, error)
}

// StockAlerter 扫描低库存并为每个 SKU 排入一封预警邮件
type StockAlerter struct {
	source StockSource
	queue  Enqueuer
	logger xlog.Logger
}

// NewStockAlerter 创建扫描器
func NewStockAlerter(source StockSource, queue Enqueuer, logger xlog.Logger) (*StockAlerter, error) {
	if source == nil || queue == nil {
		return nil, ErrNilDependency
	}
	if logger == nil {
		logger = xlog.Discard()
	}
	return &StockAlerter{source: source, queue: queue, logger: logger}, nil
}

// Handle 处理 stock-alert-scan 任务。
//
// 预警邮件的 ID 由 SKU 与扫描时刻决定：扫描任务重试或被多个实例触发时不会重复发信。
func (a *StockAlerter) Handle(ctx context.Context, job *xqueue.Job) error {
	var req ScanRequest
	if err := decode(job, &req); err != nil {
		return err
	}
	levels, err := a.source.LowStock(ctx, req.Threshold)
	if err != nil {
		return err
	}

	if req.Tick.IsZero() {
		req.Tick = job.CreatedAt
	}
	stamp := strconv.FormatInt(req.Tick.Unix(), 10)
	var errs []error
	for _, lv := range levels {
		msg := Email{
			To:        req.Recipient,
			Subject:   "Low stock: " + lv.SKU,
			Body:      fmt.Sprintf("SKU %s has %d units left (threshold %d).", lv.SKU, lv.Quantity, req.Threshold),
			Template:  "stock-alert",
			Reference: lv.SKU,
		}
		if _, err := a.queue.Enqueue(ctx, KindEmail, msg, xqueue.WithDeterministicID("stock-alert", lv.SKU, stamp)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lv.SKU, err))
		}
	}
	a.logger.Info(ctx, "stock alert scan finished", xlog.JobID(job.ID),
		xlog.Operation(KindStockAlertScan), slog.Int("low_stock", len(levels)))
	return errors.Join(errs...)
}
