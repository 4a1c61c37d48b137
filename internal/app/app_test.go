package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xguard/internal/delivery"
	"github.com/omeyang/xguard/pkg/config/xconf"
	"github.com/omeyang/xguard/pkg/observability/xlog"
	"github.com/omeyang/xguard/pkg/resilience/xlimit"
)

const sampleConfig = `
http:
  addr: ":9090"
  trust_identity: true
log:
  level: warn
breakers:
  named:
    mail:
      failure_threshold: 2
      reset_timeout: 30s
limiter:
  policies:
    general:
      window: 1m
      max_requests: 300
stock_alert:
  schedule: "0 * * * *"
  recipient: ops@example.com
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xguardd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, src, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.Path())

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.TrustIdentity)
	assert.Equal(t, xlog.LevelWarn, cfg.Log.Level)
	assert.Equal(t, 2, cfg.Breakers.Named[BreakerMail].FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breakers.Named[BreakerMail].ResetTimeout)
	assert.Equal(t, "0 * * * *", cfg.StockAlert.Schedule)

	// 未出现的字段保留默认值
	def := DefaultConfig()
	assert.Equal(t, def.Redis, cfg.Redis)
	assert.Equal(t, def.Queue, cfg.Queue)
	assert.Equal(t, def.HTTP.ShutdownTimeout, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, int64(5), cfg.StockAlert.Threshold)

	general := cfg.Policy(xlimit.General.Name)
	assert.Equal(t, xlimit.General.Name, general.Name)
	assert.Equal(t, int64(300), general.MaxRequests)
	assert.Equal(t, xlimit.Auth, cfg.Policy(xlimit.Auth.Name))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, func() error { c := DefaultConfig(); return c.Validate() }())

	cfg := DefaultConfig()
	cfg.HTTP.Addr = ""
	cfg.StockAlert.Schedule = "@hourly"
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "http.addr")
	assert.Contains(t, err.Error(), "stock_alert.recipient")

	_, err = New(cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)

	src, err := xconf.NewFromBytes([]byte("retry:\n  max_attempts: 0\n"), xconf.FormatYAML)
	require.NoError(t, err)
	_, err = FromSource(src)
	require.Error(t, err)
	assert.True(t, xconf.IsInvalid(err))
}

func TestApplyReload(t *testing.T) {
	ta := newTestApp(t, nil)
	before := ta.Logger().GetLevel()

	src, err := xconf.NewFromBytes([]byte("log:\n  level: debug\n"), xconf.FormatYAML)
	require.NoError(t, err)
	ta.ApplyReload(src, nil)
	assert.Equal(t, xlog.LevelDebug, ta.Logger().GetLevel())

	bad, err := xconf.NewFromBytes([]byte("log:\n  level: verbose\n"), xconf.FormatYAML)
	require.NoError(t, err)
	ta.ApplyReload(bad, nil)
	assert.Equal(t, xlog.LevelDebug, ta.Logger().GetLevel())

	ta.ApplyReload(nil, xconf.ErrParseFailed)
	assert.Equal(t, xlog.LevelDebug, ta.Logger().GetLevel())
	assert.NotEqual(t, before, ta.Logger().GetLevel())
}

func TestStockAlertSchedule(t *testing.T) {
	ta := newTestApp(t, func(c *Config) {
		c.StockAlert.Schedule = "*/5 * * * *"
		c.StockAlert.Recipient = "ops@example.com"
	})
	assert.Contains(t, ta.Scheduler.Entries(), scheduleStockAlert)
	assert.ElementsMatch(t,
		[]string{delivery.KindEmail, delivery.KindWebhook, delivery.KindStockAlertScan},
		ta.Queue.Kinds())

	plain := newTestApp(t, nil)
	assert.NotContains(t, plain.Queue.Kinds(), delivery.KindStockAlertScan)
}

// TestRunDeliversQueuedWebhook 启动全部服务，任务经 Worker 投递到对端
func TestRunDeliversQueuedWebhook(t *testing.T) {
	recv, srv := newReceiver(t, http.StatusNoContent)
	ta := newTestApp(t, func(c *Config) {
		c.HTTP.Addr = "127.0.0.1:0"
		c.HTTP.ShutdownTimeout = time.Second
		c.Queue.PollInterval = 10 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ta.Run(ctx) }()

	_, err := ta.Queue.Enqueue(context.Background(), delivery.KindWebhook,
		delivery.Webhook{URL: srv.URL, Event: "order.paid"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return recv.calls() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunFailsPermanentWebhook(t *testing.T) {
	_, srv := newReceiver(t, http.StatusBadRequest)
	ta := newTestApp(t, func(c *Config) {
		c.HTTP.Addr = "127.0.0.1:0"
		c.HTTP.ShutdownTimeout = time.Second
		c.Queue.PollInterval = 10 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ta.Run(ctx) }()

	id, err := ta.Queue.Enqueue(context.Background(), delivery.KindWebhook,
		delivery.Webhook{URL: srv.URL, Event: "order.paid"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		failed, err := ta.Queue.ListFailed(context.Background(), 0)
		return err == nil && len(failed) == 1 && failed[0].ID == id
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
