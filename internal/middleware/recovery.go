package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/resp"
)

// Recovery 捕获 panic 并返回统一的错误响应；已写出响应头时只记录日志
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				reqID := RequestIDFromContext(r.Context())
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", reqID),
					zap.ByteString("stack", debug.Stack()),
				)
				if !rw.wroteHeader {
					resp.Error(rw, http.StatusInternalServerError, resp.CodeInternalError, "internal server error", reqID, TraceIDFromContext(r.Context()))
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}
