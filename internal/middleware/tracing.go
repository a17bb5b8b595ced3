package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request. The route is only known once chi
// has matched it, so the span is renamed after the handler returns, e.g. to
// "POST /checkout/{attemptID}/confirm". Attempt ids stay out of span names.
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				trace.SpanFromContext(r.Context()).SetName(r.Method + " " + rctx.RoutePattern())
			}
		})
		return otelhttp.NewHandler(named, "http.request",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}
