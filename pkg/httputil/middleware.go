package httputil

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/spatialcanvas/pkg/observability"
)

// Instrument logs every request at debug level and reports it to the
// observability HTTP hooks. Mount it on a chi router.
func Instrument(logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			observability.HTTP().OnRequest(r.Context(), r.Method, route)
			observability.HTTP().OnResponse(r.Context(), r.Method, route, status, time.Since(start))
			logger.Debug("request", "method", r.Method, "route", route, "status", status, "duration", time.Since(start))
		})
	}
}

// routePattern returns the matched chi pattern, or the raw path when no
// route matched.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
