// Package app 装配 xguardd：Redis、断路器注册表、限流器、投递队列与管理接口。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xguard/internal/delivery"
	"github.com/omeyang/xguard/pkg/config/xconf"
	"github.com/omeyang/xguard/pkg/lifecycle/xrun"
	"github.com/omeyang/xguard/pkg/mq/xqueue"
	"github.com/omeyang/xguard/pkg/observability/xlog"
	"github.com/omeyang/xguard/pkg/observability/xmetrics"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/resilience/xlimit"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

// 断路器名称
const (
	BreakerMail = "mail"

	scheduleStockAlert = "stock-alert"
)

// App 一个 xguardd 实例的全部组件
type App struct {
	cfg    Config
	logger xlog.LoggerWithLevel

	redis     redis.UniversalClient
	ownsRedis bool

	Breakers  *xbreaker.Registry
	Limiter   *xlimit.Limiter
	Queue     *xqueue.Queue
	Worker    *xqueue.Worker
	Scheduler *xqueue.Scheduler
	Email     *delivery.EmailSender
	Webhooks  *delivery.WebhookSender

	failover *xlimit.FailoverStore
	local    *xlimit.LocalStore
}

// Option App 选项
type Option func(*options)

type options struct {
	logger   xlog.LoggerWithLevel
	redis    redis.UniversalClient
	meters   metric.MeterProvider
	observer xmetrics.Observer
	mailer   delivery.Mailer
	client   *http.Client
}

// WithLogger 使用已构建的日志
func WithLogger(l xlog.LoggerWithLevel) Option {
	return func(o *options) { o.logger = l }
}

// WithRedis 使用外部 Redis 客户端，App 不负责关闭它
func WithRedis(c redis.UniversalClient) Option {
	return func(o *options) { o.redis = c }
}

// WithMeterProvider 指标输出，默认全局 MeterProvider
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meters = mp }
}

// WithObserver 出站调用的观测，默认基于 MeterProvider 创建 OTel Observer
func WithObserver(ob xmetrics.Observer) Option {
	return func(o *options) { o.observer = ob }
}

// WithMailer 覆盖邮件通道
func WithMailer(m delivery.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// WithHTTPClient 出站 HTTP 客户端（Webhook 与邮件 API）
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// New 按配置装配所有组件，不启动任何后台任务
func New(cfg Config, opts ...Option) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger, _, err = xlog.New().SetLevel(cfg.Log.Level).SetFormat(cfg.Log.Format).Build()
		if err != nil {
			return nil, err
		}
	}
	if o.meters == nil {
		o.meters = otel.GetMeterProvider()
	}

	a := &App{cfg: cfg, logger: o.logger, redis: o.redis}
	if a.redis == nil {
		a.redis = NewRedisClient(cfg.Redis)
		a.ownsRedis = true
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err = a.buildBreakers(o); err != nil {
		return nil, err
	}
	if err = a.buildLimiter(o); err != nil {
		return nil, err
	}
	if err = a.buildQueue(o); err != nil {
		return nil, err
	}
	if err = a.buildDelivery(o); err != nil {
		return nil, err
	}
	return a, nil
}

// NewRedisClient 按配置创建 Redis 客户端
func NewRedisClient(cfg RedisConfig) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

func (a *App) buildBreakers(o *options) error {
	m, err := xbreaker.NewMetrics(o.meters)
	if err != nil {
		return err
	}
	ropts := []xbreaker.RegistryOption{
		xbreaker.WithDefaultConfig(a.cfg.Breakers.Default),
		xbreaker.WithBreakerOptions(
			xbreaker.WithLogger(a.logger),
			xbreaker.WithMetrics(m),
			xbreaker.WithIsSuccessful(delivery.BreakerSuccess),
		),
	}
	for name, bc := range a.cfg.Breakers.Named {
		ropts = append(ropts, xbreaker.WithConfig(name, bc))
	}
	a.Breakers, err = xbreaker.NewRegistry(ropts...)
	return err
}

func (a *App) buildLimiter(o *options) error {
	m, err := xlimit.NewMetrics(o.meters)
	if err != nil {
		return err
	}
	shared, err := xlimit.NewRedisStore(a.redis)
	if err != nil {
		return err
	}
	a.local, err = xlimit.NewLocalStore(xlimit.WithCapacity(a.cfg.Limiter.LocalCapacity))
	if err != nil {
		return err
	}
	a.failover, err = xlimit.NewFailoverStore(shared, a.local,
		xlimit.WithStoreTimeout(a.cfg.Limiter.StoreTimeout),
		xlimit.WithProbeBreaker(a.cfg.Limiter.ProbeFailures, a.cfg.Limiter.ProbeCooldown),
		xlimit.WithFailoverLogger(a.logger),
		xlimit.WithFailoverMetrics(m),
	)
	if err != nil {
		return err
	}
	a.Limiter, err = xlimit.New(a.failover,
		xlimit.WithKeyPrefix(a.cfg.Limiter.KeyPrefix),
		xlimit.WithLogger(a.logger),
		xlimit.WithMetrics(m),
	)
	return err
}

func (a *App) buildQueue(o *options) error {
	m, err := xqueue.NewMetrics(o.meters)
	if err != nil {
		return err
	}
	store, err := xqueue.NewRedisStore(a.redis, xqueue.WithRedisPrefix(a.cfg.Queue.RedisPrefix))
	if err != nil {
		return err
	}
	a.Queue, err = xqueue.NewQueue(store,
		xqueue.WithRetryPolicy(a.cfg.Queue.Retry),
		xqueue.WithLogger(a.logger),
		xqueue.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	a.Worker, err = xqueue.NewWorker(a.Queue, a.cfg.Queue)
	if err != nil {
		return err
	}
	locker, err := xqueue.NewRedisLocker(a.redis)
	if err != nil {
		return err
	}
	a.Scheduler, err = xqueue.NewScheduler(a.Queue, xqueue.WithLocker(locker))
	return err
}

func (a *App) buildDelivery(o *options) error {
	observer := o.observer
	if observer == nil {
		var err error
		if observer, err = xmetrics.NewOTelObserver(xmetrics.WithMeterProvider(o.meters)); err != nil {
			return err
		}
	}
	retry := xretry.New(a.cfg.Retry, xretry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		a.logger.Debug(context.Background(), "retrying dependency call",
			xlog.Attempt(attempt), slog.Duration("delay", delay), xlog.Err(err))
	}))

	client := o.client
	if client == nil {
		client = &http.Client{Timeout: a.cfg.Mail.Timeout}
	}
	mailer := o.mailer
	if mailer == nil {
		if a.cfg.Mail.Endpoint != "" {
			mailer = delivery.NewHTTPMailer(a.cfg.Mail.Endpoint, a.cfg.Mail.APIKey, client, observer)
		} else {
			mailer = delivery.LogMailer{Logger: a.logger}
		}
	}

	var err error
	a.Email, err = delivery.NewEmailSender(xbreaker.NewGuard(a.Breakers.Get(BreakerMail), retry), mailer, a.Queue, a.logger)
	if err != nil {
		return err
	}
	a.Webhooks, err = delivery.NewWebhookSender(a.Breakers, retry, client, observer)
	if err != nil {
		return err
	}
	handlers := delivery.Handlers{Email: a.Email, Webhook: a.Webhooks}

	if sc := a.cfg.StockAlert; sc.Schedule != "" {
		src, err := delivery.NewRedisStockSource(a.redis, sc.StockKey)
		if err != nil {
			return err
		}
		if handlers.StockAlert, err = delivery.NewStockAlerter(src, a.Queue, a.logger); err != nil {
			return err
		}
		err = a.Scheduler.AddRecurring(scheduleStockAlert, sc.Schedule, delivery.KindStockAlertScan,
			func(tick time.Time) any {
				return delivery.ScanRequest{Threshold: sc.Threshold, Recipient: sc.Recipient, Tick: tick}
			})
		if err != nil {
			return err
		}
	}
	return delivery.Register(a.Queue, handlers)
}

// Logger 返回服务日志
func (a *App) Logger() xlog.LoggerWithLevel { return a.logger }

// Config 返回当前配置
func (a *App) Config() Config { return a.cfg }

// Degraded 限流是否已降级为本地计数
func (a *App) Degraded() bool { return a.failover.Degraded() }

// ApplyReload 配置文件变更后应用可热更新的部分（目前只有日志级别）
func (a *App) ApplyReload(src xconf.Config, err error) {
	ctx := context.Background()
	if err != nil {
		a.logger.Warn(ctx, "config reload ignored", xlog.Err(err))
		return
	}
	lc := a.cfg.Log
	if err := xconf.Load(src, "log", &lc); err != nil {
		a.logger.Warn(ctx, "config reload ignored", xlog.Err(err))
		return
	}
	if lc.Level != a.logger.GetLevel() {
		a.logger.SetLevel(lc.Level)
		a.logger.Info(ctx, "log level changed", slog.String("level", lc.Level.String()))
	}
}

// Run 启动 HTTP、Worker 与调度器，阻塞到 ctx 取消或收到退出信号
func (a *App) Run(ctx context.Context, extra ...xrun.Service) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	services := append([]xrun.Service{
		xrun.Named("http", xrun.HTTPServer(srv, a.cfg.HTTP.ShutdownTimeout)),
		xrun.Named("worker", a.Worker.Run),
		xrun.Named("scheduler", a.runScheduler),
	}, extra...)

	a.logger.Info(ctx, "xguardd starting", slog.String("addr", a.cfg.HTTP.Addr), slog.Any("kinds", a.Queue.Kinds()))
	err := xrun.Run(ctx, []xrun.Option{xrun.WithLogger(a.logger), xrun.WithName("xguardd")}, services...)
	if errors.Is(err, xrun.ErrSignal) {
		a.logger.Info(context.Background(), "xguardd stopped", xlog.Err(err))
		return nil
	}
	return err
}

func (a *App) runScheduler(ctx context.Context) error {
	a.Scheduler.Start()
	<-ctx.Done()
	<-a.Scheduler.Stop().Done()
	return nil
}

// Close 释放本地存储与自建的 Redis 客户端
func (a *App) Close() error {
	var errs []error
	if a.local != nil {
		errs = append(errs, a.local.Close())
	}
	if a.ownsRedis && a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: close: %w", err)
	}
	return nil
}
