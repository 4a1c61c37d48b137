package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/omeyang/xguard/internal/delivery"
	"github.com/omeyang/xguard/pkg/observability/xlog"
	"github.com/omeyang/xguard/pkg/observability/xmetrics"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

var errSMTP = errors.New("smtp: connection reset")

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []delivery.Email
}

func (m *fakeMailer) Send(_ context.Context, msg delivery.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testApp struct {
	*App
	mr     *miniredis.Miniredis
	mailer *fakeMailer
	reader *sdkmetric.ManualReader
}

// testConfig 单次尝试、失败一次即打开断路器
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = xretry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond}
	cfg.Breakers.Default = xbreaker.Config{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		MonitoringWindow: time.Minute,
		HalfOpenMaxCalls: 1,
	}
	return cfg
}

func newTestApp(t *testing.T, mutate func(*Config)) *testApp {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	reader := sdkmetric.NewManualReader()
	mailer := &fakeMailer{}
	a, err := New(cfg,
		WithLogger(xlog.Discard()),
		WithRedis(client),
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
		WithObserver(xmetrics.NoopObserver{}),
		WithMailer(mailer),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return &testApp{App: a, mr: mr, mailer: mailer, reader: reader}
}

// do 发送请求并返回响应，body 为 nil 时不带请求体
func (ta *testApp) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	ta.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// receiver 记录回调请求，按需返回状态码
type receiver struct {
	mu     sync.Mutex
	status int
	events []string
}

func newReceiver(t *testing.T, status int) (*receiver, *httptest.Server) {
	t.Helper()
	r := &receiver{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, req.Header.Get("X-Event"))
		w.WriteHeader(r.status)
	}))
	t.Cleanup(srv.Close)
	return r, srv
}

func (r *receiver) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
