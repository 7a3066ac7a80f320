package observability

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// LoggingMiddleware emits one line per request. Server errors are logged
// at warn so a noisy generator backend stands out without grepping by
// status code.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			meter := &responseMeter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(meter, r)

			level := slog.LevelInfo
			if meter.code >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http_request",
				slog.String("trace_id", TraceIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", meter.code),
				slog.Int("bytes", meter.written),
				slog.Float64("duration_ms", float64(time.Since(started).Microseconds())/1000),
			)
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		started := time.Now()
		meter := &responseMeter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(meter, r)

		status := strconv.Itoa(meter.code)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(started).Seconds())
	})
}

// responseMeter records the status code and body size actually sent, since
// http.ResponseWriter exposes neither after the fact.
type responseMeter struct {
	http.ResponseWriter
	code    int
	written int
}

func (m *responseMeter) WriteHeader(code int) {
	m.code = code
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeter) Write(body []byte) (int, error) {
	n, err := m.ResponseWriter.Write(body)
	m.written += n
	return n, err
}
