package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/xguard/pkg/config/xconf"
	"github.com/omeyang/xguard/pkg/mq/xqueue"
	"github.com/omeyang/xguard/pkg/observability/xlog"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/resilience/xlimit"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

// ErrInvalidConfig 服务配置非法
var ErrInvalidConfig = errors.New("app: invalid config")

// Config xguardd 的完整配置
type Config struct {
	HTTP       HTTPConfig       `json:"http" yaml:"http" koanf:"http"`
	Redis      RedisConfig      `json:"redis" yaml:"redis" koanf:"redis"`
	Log        LogConfig        `json:"log" yaml:"log" koanf:"log"`
	Breakers   BreakersConfig   `json:"breakers" yaml:"breakers" koanf:"breakers"`
	Retry      xretry.Policy    `json:"retry" yaml:"retry" koanf:"retry"`
	Limiter    LimiterConfig    `json:"limiter" yaml:"limiter" koanf:"limiter"`
	Queue      xqueue.Config    `json:"queue" yaml:"queue" koanf:"queue"`
	Mail       MailConfig       `json:"mail" yaml:"mail" koanf:"mail"`
	StockAlert StockAlertConfig `json:"stock_alert" yaml:"stock_alert" koanf:"stock_alert"`
}

// HTTPConfig 管理与业务 HTTP 入口
type HTTPConfig struct {
	Addr            string        `json:"addr" yaml:"addr" koanf:"addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" koanf:"shutdown_timeout"`
	// TrustIdentity 采信网关注入的 X-User-ID / X-User-Role
	TrustIdentity bool `json:"trust_identity" yaml:"trust_identity" koanf:"trust_identity"`
}

// RedisConfig 共享 Redis
type RedisConfig struct {
	Addr         string        `json:"addr" yaml:"addr" koanf:"addr"`
	Password     string        `json:"password" yaml:"password" koanf:"password"`
	DB           int           `json:"db" yaml:"db" koanf:"db"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" koanf:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" koanf:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" koanf:"write_timeout"`
}

// LogConfig 日志，Level 支持热更新
type LogConfig struct {
	Level  xlog.Level `json:"level" yaml:"level" koanf:"level"`
	Format string     `json:"format" yaml:"format" koanf:"format"`
	// File 非空时写入文件并按大小轮转
	File      string `json:"file" yaml:"file" koanf:"file"`
	MaxSizeMB int    `json:"max_size_mb" yaml:"max_size_mb" koanf:"max_size_mb"`
}

// BreakersConfig 断路器默认配置与按依赖名覆盖
type BreakersConfig struct {
	Default xbreaker.Config            `json:"default" yaml:"default" koanf:"default"`
	Named   map[string]xbreaker.Config `json:"named" yaml:"named" koanf:"named"`
}

// LimiterConfig 限流
type LimiterConfig struct {
	KeyPrefix     string        `json:"key_prefix" yaml:"key_prefix" koanf:"key_prefix"`
	LocalCapacity int           `json:"local_capacity" yaml:"local_capacity" koanf:"local_capacity"`
	StoreTimeout  time.Duration `json:"store_timeout" yaml:"store_timeout" koanf:"store_timeout"`
	// ProbeFailures 共享存储连续失败多少次后暂时跳过，0 表示不跳过
	ProbeFailures uint32        `json:"probe_failures" yaml:"probe_failures" koanf:"probe_failures"`
	ProbeCooldown time.Duration `json:"probe_cooldown" yaml:"probe_cooldown" koanf:"probe_cooldown"`
	// Policies 覆盖预置策略，键为策略名
	Policies map[string]xlimit.Policy `json:"policies" yaml:"policies" koanf:"policies"`
}

// MailConfig 邮件服务商，Endpoint 为空时只记录日志
type MailConfig struct {
	Endpoint string        `json:"endpoint" yaml:"endpoint" koanf:"endpoint"`
	APIKey   string        `json:"api_key" yaml:"api_key" koanf:"api_key"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" koanf:"timeout"`
}

// StockAlertConfig 低库存巡检，Schedule 为空时不启用
type StockAlertConfig struct {
	Schedule  string `json:"schedule" yaml:"schedule" koanf:"schedule"`
	Threshold int64  `json:"threshold" yaml:"threshold" koanf:"threshold"`
	Recipient string `json:"recipient" yaml:"recipient" koanf:"recipient"`
	StockKey  string `json:"stock_key" yaml:"stock_key" koanf:"stock_key"`
}

// DefaultConfig 本地开发可直接运行的默认配置
func DefaultConfig() Config {
	return Config{
		HTTP:  HTTPConfig{Addr: ":8080", ShutdownTimeout: 15 * time.Second},
		Redis: RedisConfig{Addr: "127.0.0.1:6379", DialTimeout: 2 * time.Second, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Log:   LogConfig{Level: xlog.LevelInfo, Format: "json", MaxSizeMB: 100},
		Breakers: BreakersConfig{
			Default: xbreaker.DefaultConfig(),
		},
		Retry: xretry.DefaultPolicy(),
		Limiter: LimiterConfig{
			KeyPrefix:     "ratelimit:",
			LocalCapacity: 100_000,
			StoreTimeout:  50 * time.Millisecond,
			ProbeFailures: 5,
			ProbeCooldown: 10 * time.Second,
		},
		Queue: xqueue.DefaultConfig(),
		Mail:  MailConfig{Timeout: 10 * time.Second},
		StockAlert: StockAlertConfig{
			Threshold: 5,
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is empty"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is empty"))
	}
	if err := c.Breakers.Default.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("breakers.default: %w", err))
	}
	for name, bc := range c.Breakers.Named {
		if err := bc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("breakers.named.%s: %w", name, err))
		}
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	for name, p := range c.Limiter.Policies {
		if p.Name == "" {
			p.Name = name
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("limiter.policies.%s: %w", name, err))
		}
	}
	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("queue: %w", err))
	}
	if c.StockAlert.Schedule != "" && c.StockAlert.Recipient == "" {
		errs = append(errs, errors.New("stock_alert.recipient is required when schedule is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Policy 返回名为 name 的限流策略，配置覆盖优先于预置
func (c *Config) Policy(name string) xlimit.Policy {
	if p, ok := c.Limiter.Policies[name]; ok {
		if p.Name == "" {
			p.Name = name
		}
		return p
	}
	return xlimit.Presets()[name]
}

// LoadConfig 从文件加载配置，缺失字段取 DefaultConfig
func LoadConfig(path string) (Config, xconf.Config, error) {
	src, err := xconf.New(path)
	if err != nil {
		return Config{}, nil, err
	}
	cfg, err := FromSource(src)
	return cfg, src, err
}

// FromSource 从已加载的配置源解码
func FromSource(src xconf.Config) (Config, error) {
	cfg := DefaultConfig()
	if err := xconf.Load(src, "", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
