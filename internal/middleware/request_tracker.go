package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// RequestObserver receives one observation per completed request.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// RequestTracker logs every request and reports its latency to an observer.
type RequestTracker struct {
	observer RequestObserver
}

// NewRequestTracker creates a new request tracker middleware. observer may be nil.
func NewRequestTracker(observer RequestObserver) *RequestTracker {
	return &RequestTracker{observer: observer}
}

// Middleware returns an HTTP middleware that tracks request metrics
func (rt *RequestTracker) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			route := routePattern(r)

			if rt.observer != nil {
				rt.observer.ObserveRequest(r.Method, route, rw.statusCode, duration)
			}

			event := log.Info()
			if rw.statusCode >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", rw.statusCode).
				Int("bytes", rw.size).
				Dur("duration", duration).
				Str("remote_addr", r.RemoteAddr).
				Msg("http request")
		})
	}
}

// routePattern keeps metric label cardinality bounded by using the matched chi
// pattern instead of the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
