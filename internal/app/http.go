package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/omeyang/xguard/internal/delivery"
	"github.com/omeyang/xguard/pkg/mq/xqueue"
	"github.com/omeyang/xguard/pkg/observability/xlog"
	"github.com/omeyang/xguard/pkg/observability/xtrace"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/resilience/xlimit"
)

const (
	maxBodyBytes       = 1 << 20
	defaultFailedLimit = 100

	msgDegraded   = "service temporarily degraded"
	msgDependency = "dependency error"
)

// errBadRequest 请求体无法解析
var errBadRequest = errors.New("bad request")

// Handler 返回完整的 HTTP 路由
func (a *App) Handler() http.Handler {
	general := a.cfg.Policy(xlimit.General.Name)
	admin := a.cfg.Policy(xlimit.Admin.Name)
	expensive := a.cfg.Policy(xlimit.Expensive.Name)

	limit := func(p xlimit.Policy) func(http.Handler) http.Handler {
		return xlimit.HTTPMiddleware(a.Limiter, p,
			xlimit.WithPolicyFunc(xlimit.PolicyForRole(p, map[string]xlimit.Policy{"admin": admin})),
			xlimit.WithMiddlewareLogger(a.logger))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.healthz)

	mux.Handle("GET /admin/breakers", limit(admin)(http.HandlerFunc(a.listBreakers)))
	mux.Handle("POST /admin/breakers/{name}/reset", limit(admin)(http.HandlerFunc(a.resetBreaker)))
	mux.Handle("GET /admin/jobs/failed", limit(admin)(http.HandlerFunc(a.listFailed)))
	mux.Handle("POST /admin/jobs/{id}/replay", limit(admin)(http.HandlerFunc(a.replayJob)))

	mux.Handle("POST /v1/notifications/email", limit(general)(http.HandlerFunc(a.sendEmail)))
	mux.Handle("POST /v1/webhooks", limit(general)(http.HandlerFunc(a.enqueueWebhook)))
	mux.Handle("POST /v1/webhooks/test", limit(expensive)(http.HandlerFunc(a.testWebhook)))

	var opts []xtrace.Option
	if a.cfg.HTTP.TrustIdentity {
		opts = append(opts, xtrace.WithTrustedIdentity())
	}
	return xtrace.HTTPMiddleware(opts...)(mux)
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if a.Degraded() {
		status = "degraded"
	}
	redisErr := ""
	if err := a.redis.Ping(r.Context()).Err(); err != nil {
		status = "degraded"
		redisErr = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"limiter_local": a.Degraded(),
		"redis_error":   redisErr,
	})
}

func (a *App) listBreakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Breakers.Snapshots())
}

func (a *App) resetBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := a.Breakers.Reset(name); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.logger.Info(r.Context(), "breaker reset by operator", xlog.Name(name))
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) listFailed(w http.ResponseWriter, r *http.Request) {
	limit := defaultFailedLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeError(w, r, fmt.Errorf("%w: limit %q", errBadRequest, v))
			return
		}
		limit = n
	}
	jobs, err := a.Queue.ListFailed(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*xqueue.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *App) replayJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Queue.Replay(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *App) sendEmail(w http.ResponseWriter, r *http.Request) {
	var msg delivery.Email
	if err := decodeBody(r, &msg); err != nil {
		a.writeError(w, r, err)
		return
	}
	queued, err := a.Email.Send(r.Context(), msg)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]bool{"queued": queued})
}

func (a *App) enqueueWebhook(w http.ResponseWriter, r *http.Request) {
	var hook delivery.Webhook
	if err := decodeBody(r, &hook); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := hook.Validate(); err != nil {
		a.writeError(w, r, err)
		return
	}
	var opts []xqueue.EnqueueOption
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		opts = append(opts, xqueue.WithDeterministicID(key))
	}
	id, err := a.Queue.Enqueue(r.Context(), delivery.KindWebhook, hook, opts...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// testWebhook 同步投递一次，供商户验证回调地址
func (a *App) testWebhook(w http.ResponseWriter, r *http.Request) {
	var hook delivery.Webhook
	if err := decodeBody(r, &hook); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.Webhooks.Deliver(r.Context(), hook); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

// errorStatus 把错误映射为响应状态与对外消息，断路器打开为 503，其余依赖错误为 502
func errorStatus(err error) (int, string) {
	switch {
	case xbreaker.IsOpen(err):
		return http.StatusServiceUnavailable, msgDegraded
	case errors.Is(err, errBadRequest), errors.Is(err, delivery.ErrInvalidMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, xbreaker.ErrUnknownBreaker), errors.Is(err, xqueue.ErrJobNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, xqueue.ErrNotFailed):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusBadGateway, msgDependency
	}
}

func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Warn(r.Context(), "request failed", xlog.Operation(r.Pattern), xlog.Err(err))
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
