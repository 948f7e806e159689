package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brightline-clinics/voice-scheduler/internal/observability/metrics"
	"github.com/brightline-clinics/voice-scheduler/pkg/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger emits one structured log line per request and feeds webhook
// latency into the histogram. Telephony providers retry on slow webhooks, so
// latency on /webhooks paths is the number worth watching.
func RequestLogger(logger *logging.Logger, m *metrics.SchedulingMetrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			if strings.HasPrefix(r.URL.Path, "/webhooks/") {
				m.ObserveWebhookLatency(r.URL.Path, elapsed.Seconds())
			}
			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"request_id", reqID,
				"remote_ip", r.RemoteAddr,
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}
