package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/go-chi/chi/v5"
)

// unmatchedRoute labels requests chi could not route. Raw paths carry
// attempt ids and would explode label cardinality.
const unmatchedRoute = "unmatched"

// Metrics is middleware that records HTTP request metrics by route pattern.
func Metrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.statusCode)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
