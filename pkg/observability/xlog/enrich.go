package xlog

import (
	"context"
	"log/slog"

	"github.com/omeyang/xguard/pkg/context/xctx"
)

// EnrichHandler 从 context 提取请求字段并注入日志
//
// 缺失字段跳过，不影响日志记录。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 包装 base handler
func NewEnrichHandler(base slog.Handler) *EnrichHandler {
	return &EnrichHandler{base: base}
}

func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle 注入字段前先 Clone record，符合 slog 契约
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf [8]slog.Attr
	attrs := xctx.AppendLogAttrs(buf[:0], ctx)
	if len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.base.Handle(ctx, r)
}

func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
