// Package trace tags every request with an id, stores a request-scoped
// logger in its context and logs and measures the request lifecycle.
package trace

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pricedash/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type ContextKey string

const RequestIDKey ContextKey = "request_id"

// Observer receives one observation per completed request. route is the
// matched mux pattern, or "unmatched".
type Observer interface {
	ObserveHTTP(route, method string, status int, elapsed time.Duration)
}

// Options configures the middleware. Every field is optional.
type Options struct {
	ExtractIP  func(*http.Request) string
	Suspicious func(*http.Request) bool
	Observer   Observer
}

type Middleware struct {
	logger     *log.Logger
	structured *log.StructuredLogger
	opts       Options
}

func NewMiddleware(logger *log.Logger, opts Options) *Middleware {
	if logger == nil {
		logger = log.Discard()
	}
	if opts.ExtractIP == nil {
		opts.ExtractIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	return &Middleware{
		logger:     logger.WithComponent(log.ComponentTrace),
		structured: log.NewStructuredLogger(logger),
		opts:       opts,
	}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := m.opts.ExtractIP(r)

		requestID := r.Header.Get(HeaderRequestID)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = log.NewContext(ctx, m.logger.With(log.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		if m.opts.Suspicious != nil && m.opts.Suspicious(r) {
			m.logger.WarnContext(ctx, "Suspicious request",
				log.FieldRequestID, requestID,
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		m.structured.LogHTTPStart(ctx, r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		m.structured.LogHTTPEnd(ctx, r, rw.statusCode, elapsed.Milliseconds(), clientIP)

		if m.opts.Observer != nil {
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.opts.Observer.ObserveHTTP(route, r.Method, rw.statusCode, elapsed)
		}
	})
}

// validRequestID accepts caller ids that are short and printable ASCII.
func validRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
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
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GetRequestID extracts the request id from ctx.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
