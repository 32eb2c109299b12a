package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/MorseWayne/apparel_shop/internal/resp"
)

// IdempotencyKeyContextKey gin 上下文中幂等键的键名
const IdempotencyKeyContextKey = "idempotency_key"

// IdempotencyConfig 幂等性中间件配置
type IdempotencyConfig struct {
	// 幂等键头名称
	IdempotencyKeyHeader string

	// 不做处理的方法
	SkipMethods []string

	// 为 true 时缺少幂等键直接拒绝
	Required bool

	// 幂等键最大长度
	MaxKeyLength int
}

// DefaultIdempotencyConfig 默认幂等性配置
func DefaultIdempotencyConfig() *IdempotencyConfig {
	return &IdempotencyConfig{
		IdempotencyKeyHeader: "X-Idempotency-Key",
		SkipMethods:          []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxKeyLength:         128,
	}
}

// IdempotencyMiddleware 读取客户端提供的幂等键并放入 gin 上下文，
// 去重由业务层的幂等存储完成。未提供幂等键的请求不做去重。
func IdempotencyMiddleware(config ...*IdempotencyConfig) gin.HandlerFunc {
	cfg := DefaultIdempotencyConfig()
	if len(config) > 0 && config[0] != nil {
		cfg = config[0]
	}

	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipMethods, c.Request.Method) {
			c.Next()
			return
		}

		key := c.GetHeader(cfg.IdempotencyKeyHeader)
		reqID := RequestIDFromContext(c.Request.Context())
		traceID := TraceIDFromContext(c.Request.Context())

		switch {
		case key == "" && cfg.Required:
			resp.Error(c.Writer, http.StatusBadRequest, resp.CodeInvalidParam,
				cfg.IdempotencyKeyHeader+" header required", reqID, traceID)
			c.Abort()
			return
		case cfg.MaxKeyLength > 0 && len(key) > cfg.MaxKeyLength:
			resp.Error(c.Writer, http.StatusBadRequest, resp.CodeInvalidParam,
				"idempotency key too long", reqID, traceID)
			c.Abort()
			return
		}

		if key != "" {
			c.Set(IdempotencyKeyContextKey, key)
		}
		c.Next()
	}
}

// IdempotencyKey 读取中间件放入的幂等键
func IdempotencyKey(c *gin.Context) string {
	return c.GetString(IdempotencyKeyContextKey)
}
