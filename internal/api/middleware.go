package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"venue-pickup-service/internal/platform/obs"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// HTTPObserver records request outcomes; platform/metrics.Collector satisfies it.
type HTTPObserver interface {
	HTTPObserve(method, route string, code int, d time.Duration)
}

// statusWriter captures the final HTTP status code and number of bytes written.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

// Record implicit 200 responses when handlers write without calling WriteHeader.
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// requestIDMiddleware reuses the caller's request id from header or mints one, and
// echoes it on the response.
func requestIDMiddleware(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(header))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(header, id)

			ctx := context.WithValue(r.Context(), obs.RequestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// loggingMiddleware attaches a request-scoped logger to the context and writes one
// access line per request.
func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			entry := logrus.NewEntry(logger).WithFields(logrus.Fields{
				"req_id": obs.RequestID(r.Context()),
				"method": r.Method,
				"path":   r.URL.Path,
			})
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r.WithContext(obs.WithLogger(r.Context(), entry)))

			fields := logrus.Fields{
				"status": sw.code(),
				"bytes":  sw.bytes,
				"dur_ms": time.Since(start).Milliseconds(),
			}
			switch code := sw.code(); {
			case code >= 500:
				entry.WithFields(fields).Error("request")
			case code >= 400:
				entry.WithFields(fields).Warn("request")
			default:
				entry.WithFields(fields).Info("request")
			}
		})
	}
}

// metricsMiddleware labels requests by route template so ids do not explode the
// label space.
func metricsMiddleware(m HTTPObserver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.HTTPObserve(r.Method, route, sw.code(), time.Since(start))
		})
	}
}
