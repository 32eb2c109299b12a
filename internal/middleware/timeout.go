package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MorseWayne/apparel_shop/internal/resp"
)

// Timeout 为请求上下文设置截止时间，仓储与服务层的阻塞调用随之取消。
// 处理器在截止后返回且尚未写出响应时，写入统一的超时响应。
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			if !rw.wroteHeader && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				resp.Error(rw, resp.HTTPStatusFromCode(resp.CodeTimeout), resp.CodeTimeout, "request timeout",
					RequestIDFromContext(r.Context()), TraceIDFromContext(ctx))
			}
		})
	}
}
