package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"lsm/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// statusRecorder remembers the status code and body size for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// withRecover turns a handler panic into a 500 and logs the stack.
func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logging.WithContext(r.Context(), s.logger).Error("handler panic",
				logging.String(logging.FieldEventType, "panic"),
				logging.String("panic", fmt.Sprint(rec)),
				logging.String("stack", string(debug.Stack())))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// withRequestID keeps a sane incoming X-Request-ID or assigns a new one.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 || strings.ContainsFunc(id, func(c rune) bool { return c < 0x21 || c > 0x7e }) {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// withAccessLog logs one line per request and feeds the metrics.
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := s.route(r)
		if s.metrics != nil {
			s.metrics.observe(route, r.Method, rec.code(), elapsed)
		}
		level := s.logger.Debug
		if rec.code() >= http.StatusInternalServerError {
			level = s.logger.Warn
		}
		level("request",
			logging.Args(
				logging.String(logging.FieldEventType, "http_request"),
				logging.String("request_id", requestID(r)),
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("route", route),
				logging.Int("status", rec.code()),
				logging.Int64("bytes", rec.bytes),
				logging.Duration("elapsed", elapsed),
			)...)
	})
}

func requestID(r *http.Request) string {
	if id, ok := logging.RequestIDFromContext(r.Context()); ok {
		return id
	}
	return ""
}

// route labels a request for metrics without using the raw path.
func (s *Server) route(r *http.Request) string {
	path := r.URL.Path
	switch {
	case path == "/metrics":
		return "metrics"
	case strings.HasPrefix(path, s.base+"/static/"):
		return "static"
	case strings.HasPrefix(path, s.base+"/uploads/"):
		return "uploads"
	}
	if pattern := s.app.Router().Match(path); pattern != "" {
		return pattern
	}
	return "unmatched"
}
