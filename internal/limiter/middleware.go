package limiter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/metrics"
	"github.com/MorseWayne/apparel_shop/internal/resp"
	"github.com/MorseWayne/apparel_shop/internal/tracing"
)

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	// 限流器
	Limiter Limiter

	// Key生成函数
	KeyGenerator func(*gin.Context) string

	// 限流器出错时放行（Redis 故障不影响下单）
	FailOpen bool

	// 被拒绝时的提示信息
	Message string

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// 限流相关响应头
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// DefaultKeyGenerator 默认Key生成器（基于IP）
func DefaultKeyGenerator(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// UserKeyGenerator 已认证请求按用户限流，匿名请求按IP
func UserKeyGenerator(c *gin.Context) string {
	if userID := c.GetInt64("user_id"); userID > 0 {
		return fmt.Sprintf("user:%d", userID)
	}
	return DefaultKeyGenerator(c)
}

// RateLimitMiddleware 创建限流中间件
func RateLimitMiddleware(config MiddlewareConfig) gin.HandlerFunc {
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultKeyGenerator
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Message == "" {
		config.Message = "too many requests, please retry later"
	}

	return func(c *gin.Context) {
		key := config.KeyGenerator(c)
		reqCtx := c.Request.Context()

		ctx, cancel := context.WithTimeout(reqCtx, time.Second)
		defer cancel()

		result, err := config.Limiter.Allow(ctx, key)
		if err != nil {
			config.Logger.Warn("rate limiter unavailable",
				zap.String("key", key),
				zap.Bool("fail_open", config.FailOpen),
				zap.Error(err),
			)
			if config.FailOpen {
				c.Next()
				return
			}
			resp.Error(c.Writer, http.StatusServiceUnavailable, resp.CodeUnavailable, "rate limiter unavailable",
				requestID(c), tracing.TraceID(reqCtx))
			c.Abort()
			return
		}

		c.Header(HeaderLimit, strconv.FormatInt(result.Limit, 10))
		c.Header(HeaderRemaining, strconv.FormatInt(max(result.Remaining, 0), 10))

		if !result.Allowed {
			if result.RetryAfter > 0 {
				secs := int64((result.RetryAfter + time.Second - 1) / time.Second)
				c.Header(HeaderRetryAfter, strconv.FormatInt(secs, 10))
			}
			config.Metrics.RateLimited(c.FullPath())
			resp.Error(c.Writer, http.StatusTooManyRequests, resp.CodeTooManyRequests, config.Message,
				requestID(c), tracing.TraceID(reqCtx))
			c.Abort()
			return
		}

		c.Next()
	}
}

// CheckoutRateLimitMiddleware 下单接口限流，按用户或IP计数，限流器故障时放行
func CheckoutRateLimitMiddleware(limiter Limiter, logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return RateLimitMiddleware(MiddlewareConfig{
		Limiter: limiter,
		KeyGenerator: func(c *gin.Context) string {
			return "checkout:" + UserKeyGenerator(c)
		},
		FailOpen: true,
		Message:  "too many checkout attempts, please retry later",
		Logger:   logger,
		Metrics:  m,
	})
}

// requestID 与 middleware 包约定：请求 ID 由外层 net/http 中间件写入响应头
func requestID(c *gin.Context) string {
	return c.Writer.Header().Get("X-Request-ID")
}
