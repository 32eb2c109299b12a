package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/resp"
)

// Pinger 健康检查依赖（数据库、缓存）
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc 将函数适配为 Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// HealthHandler 健康检查
type HealthHandler struct {
	version string
	checks  map[string]Pinger
	logger  *zap.Logger
}

// NewHealthHandler checks 中任一依赖不可用时 /readyz 返回 503
func NewHealthHandler(version string, checks map[string]Pinger, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{version: version, checks: checks, logger: logger}
}

// Healthz 存活检查
// GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	data := map[string]any{
		"status":  "ok",
		"version": h.version,
	}
	ok(c, data)
}

// Readyz 依赖检查
// GET /readyz
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	ready := true
	for name, p := range h.checks {
		if err := p.PingContext(ctx); err != nil {
			h.logger.Warn("dependency not ready", zap.String("dependency", name), zap.Error(err))
			deps[name] = "down"
			ready = false
			continue
		}
		deps[name] = "up"
	}

	data := map[string]any{
		"status":       "ok",
		"version":      h.version,
		"dependencies": deps,
	}
	if !ready {
		data["status"] = "degraded"
		resp.ErrorWithData(c.Writer, http.StatusServiceUnavailable, resp.CodeUnavailable, "dependency unavailable", data, requestID(c), traceID(c))
		return
	}
	ok(c, data)
}
