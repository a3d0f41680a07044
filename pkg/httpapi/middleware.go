package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/log"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metrics"
)

type contextKey int

const requestIDKey contextKey = 0

// requestID assigns each request a fresh UUID, echoed back on the
// X-Request-Id response header and threaded into every log line the
// request produces — grounded on the teacher's pkg/api/server.go, which
// stamps every node/service/task/secret/volume record with
// uuid.New().String() rather than an auto-increment ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// requestLogger logs one structured line per request, in the teacher's
// zerolog component-logger style, and records the tinycloud_http_requests_
// total / tinycloud_http_request_duration_seconds pair by route pattern
// (not raw path, to keep the route label's cardinality bounded).
func requestLogger(next http.Handler) http.Handler {
	logger := log.WithComponent("httpapi")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start)

		route := routePattern(r)
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(dur.Seconds())

		reqID, _ := r.Context().Value(requestIDKey).(string)
		logger.Info().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", dur).
			Msg("request")
	})
}

// routePattern reports the chi route pattern matched for r ("/invoke",
// "/peer/generate/{spaceID}", ...), falling back to the raw path before
// routing has occurred.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}
