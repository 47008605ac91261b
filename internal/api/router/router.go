package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/trial-booking/internal/bookings"
	"github.com/wolfman30/trial-booking/internal/conversation"
	httpmiddleware "github.com/wolfman30/trial-booking/internal/http/middleware"
	"github.com/wolfman30/trial-booking/internal/webchat"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	AdminConversations  *conversation.AdminHandler
	AdminBookings       *bookings.Handler
	WebChat             *webchat.Handler
	MetricsHandler      http.Handler

	AdminAuthSecret    string
	RateLimitPerMinute int
	CORSAllowedOrigins []string

	// HealthChecks are run by /health; any failure turns it into a 503.
	HealthChecks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPerMinute, burstFor(cfg.RateLimitPerMinute))
	perConversation := httpmiddleware.RateLimit(limiter, httpmiddleware.ConversationKey)

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if h := cfg.ConversationHandler; h != nil {
		r.Route("/v1", func(v1 chi.Router) {
			v1.Route("/conversations/{conversationID}", func(conv chi.Router) {
				conv.With(perConversation).Post("/messages", h.SendMessage)
				conv.With(perConversation).Post("/jobs", h.EnqueueMessage)
			})
			v1.Get("/jobs/{jobID}", h.GetJob)
		})
	}

	if h := cfg.WebChat; h != nil {
		r.Route("/webchat", func(chat chi.Router) {
			chat.Use(httpmiddleware.WidgetCORS(cfg.CORSAllowedOrigins))
			chat.Get("/ws", h.HandleWebSocket)
			chat.With(httpmiddleware.RateLimit(limiter, httpmiddleware.ClientIPKey)).Post("/messages", h.HandleMessage)
			chat.Get("/history", h.HandleHistory)
		})
	}

	if cfg.AdminConversations != nil || cfg.AdminBookings != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if h := cfg.AdminConversations; h != nil {
				admin.Route("/conversations/{conversationID}", func(conv chi.Router) {
					conv.Get("/", h.GetConversation)
					conv.Delete("/", h.Reset)
					conv.Post("/handoff", h.Handoff)
					conv.Get("/turns", h.ListTurns)
				})
			}
			if h := cfg.AdminBookings; h != nil {
				admin.Get("/bookings", h.List)
				admin.Get("/bookings/{bookingID}", h.Get)
				admin.Patch("/bookings/{bookingID}", h.UpdateStatus)
			}
		})
	}

	return r
}

func burstFor(perMinute int) int {
	if perMinute < 10 {
		return 3
	}
	return perMinute / 3
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
