package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/MorseWayne/apparel_shop/internal/tracing"
)

// HeaderTraceID 响应头中回显的 trace id
const HeaderTraceID = "X-Trace-ID"

// Tracing 提取 W3C trace context 并为每个请求开启服务端 span，传播器由 tracing.InstallPropagator 注册
func Tracing(next http.Handler) http.Handler {
	prop := otel.GetTextMapPropagator()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracing.Start(ctx, "HTTP "+r.Method,
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
			attribute.String("request_id", RequestIDFromContext(r.Context())),
		)
		defer span.End()

		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			w.Header().Set(HeaderTraceID, sc.TraceID().String())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
