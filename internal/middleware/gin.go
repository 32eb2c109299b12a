package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MorseWayne/apparel_shop/internal/metrics"
)

// Gin 将 net/http 风格的中间件适配为 gin 中间件。
// 内层处理器未被调用（中间件已写出响应）时终止 gin 处理链。
func Gin(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			c.Request = r
			if user := UserFromContext(r.Context()); user != nil {
				c.Set("user", user)
				c.Set("user_id", user.ID)
			}
			c.Next()
		})
		mw(next).ServeHTTP(c.Writer, c.Request)
		if !called {
			c.Abort()
		}
	}
}

// HTTPMetrics 以路由模板为标签记录请求量与耗时
func HTTPMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
