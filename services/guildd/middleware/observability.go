package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"guildhall/observability"
	"guildhall/observability/logging"
)

// Observe records API metrics and logs every request. The route label is the
// chi route pattern so path parameters do not explode label cardinality.
func Observe(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			duration := time.Since(start)
			observability.API().Observe(route, r.Method, status, duration)

			attrs := []any{
				"method", r.Method,
				"route", route,
				"status", status,
				"duration_ms", float64(duration.Microseconds()) / 1000,
				"request_id", chimw.GetReqID(r.Context()),
			}
			if caller, ok := CallerFrom(r.Context()); ok {
				attrs = append(attrs, "caller", caller.String())
			}
			if status >= http.StatusInternalServerError {
				logger.Error("request failed", append(attrs, logging.HeaderAttrs(r.Header))...)
				return
			}
			logger.Debug("request served", attrs...)
		})
	}
}
