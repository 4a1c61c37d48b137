package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/omeyang/xguard/pkg/observability/xmetrics"
	"github.com/omeyang/xguard/pkg/observability/xtrace"
)

const (
	// maxErrorBody 错误响应最多读取的字节数，仅用于丢弃
	maxErrorBody = 64 << 10

	defaultHTTPTimeout = 10 * time.Second
)

// poster 以 JSON 发送 POST 请求并观测结果
type poster struct {
	client    *http.Client
	observer  xmetrics.Observer
	component string
}

func newPoster(client *http.Client, observer xmetrics.Observer, component string) *poster {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &poster{client: client, observer: observer, component: component}
}

func (p *poster) post(ctx context.Context, target string, headers map[string]string, body []byte) (err error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: target %q", ErrInvalidMessage, target)
	}

	ctx, span := xmetrics.Start(ctx, p.observer, xmetrics.SpanOptions{
		Component: p.component,
		Operation: "post",
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String("http.host", u.Host)},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("delivery: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	xtrace.InjectToRequest(ctx, req)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: post %s: %w", u.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()
	// 读尽响应体以复用连接
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Target: u.Host, Code: resp.StatusCode}
	}
	return nil
}
