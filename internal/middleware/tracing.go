package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing instruments each request with otelhttp, named after chi's
// matched route pattern so span names keep bounded cardinality.
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrappedNext := http.HandlerFunc(func(w2 http.ResponseWriter, r2 *http.Request) {
				rctx := chi.RouteContext(r2.Context())
				var operation string

				if rctx != nil && rctx.RoutePattern() != "" {
					operation = fmt.Sprintf("%s %s", r2.Method, rctx.RoutePattern())
				} else {
					operation = fmt.Sprintf("%s %s", r2.Method, r2.URL.Path)
				}

				// Surface the trace ID so clients can quote it in support
				// requests.
				inner := http.HandlerFunc(func(w3 http.ResponseWriter, r3 *http.Request) {
					if sc := trace.SpanContextFromContext(r3.Context()); sc.HasTraceID() {
						w3.Header().Set("X-Trace-Id", sc.TraceID().String())
					}
					next.ServeHTTP(w3, r3)
				})

				otelhttp.NewHandler(inner, operation).ServeHTTP(w2, r2)
			})

			wrappedNext.ServeHTTP(w, r)
		})
	}
}
