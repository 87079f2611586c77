package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request counts and latency per route pattern. The chi
// route pattern keeps label cardinality bounded; raw paths would explode
// it with every record ID.
func Metrics(metrics *prometheus.AppMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := chi.RouteContext(r.Context()).RoutePattern()
			if path == "" {
				path = "unmatched"
			}
			prometheus.RecordHTTPRequest(metrics, r.Method, path, sw.status, time.Since(start))
		})
	}
}
