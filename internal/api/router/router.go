package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightline-clinics/voice-scheduler/internal/http/handlers"
	httpmiddleware "github.com/brightline-clinics/voice-scheduler/internal/http/middleware"
	"github.com/brightline-clinics/voice-scheduler/internal/observability/metrics"
	"github.com/brightline-clinics/voice-scheduler/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Metrics            *metrics.SchedulingMetrics
	VoiceWebhook       *handlers.VoiceWebhookHandler
	ToolCalls          *handlers.ToolCallHandler
	AdminAppointments  *handlers.AdminAppointmentsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.Metrics))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.VoiceWebhook != nil {
		r.Route("/webhooks/voice", func(r chi.Router) {
			r.Post("/", cfg.VoiceWebhook.HandleInboundCall)
			r.Post("/status", cfg.VoiceWebhook.HandleStatusCallback)
		})
	}

	if cfg.ToolCalls != nil {
		r.Route("/webhooks/tools", func(r chi.Router) {
			r.Post("/create-appointment", cfg.ToolCalls.HandleCreate)
			r.Post("/check-availability", cfg.ToolCalls.HandleCheck)
			r.Post("/edit-appointment", cfg.ToolCalls.HandleEdit)
			r.Post("/cancel-appointment", cfg.ToolCalls.HandleCancel)
			r.Post("/transfer-call", cfg.ToolCalls.HandleTransfer)
			r.Post("/end-call", cfg.ToolCalls.HandleEnd)
		})
	}

	if cfg.AdminAppointments != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			r.Get("/appointments", cfg.AdminAppointments.HandleList)
		})
	}

	return r
}
