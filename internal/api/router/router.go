package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/club-portal-assistant/internal/http/middleware"
	"github.com/wolfman30/club-portal-assistant/internal/webchat"
	"github.com/wolfman30/club-portal-assistant/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Webchat            *webchat.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	AuthJWTSecret      string
	// ChatLimiter throttles message sends; nil disables rate limiting.
	ChatLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.Identity(cfg.AuthJWTSecret))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webchat != nil {
		r.Route("/chat", func(chat chi.Router) {
			chat.With(middleware.Compress(5)).Get("/widget.js", cfg.Webchat.HandleWidgetJS)
			chat.Get("/ws", cfg.Webchat.HandleWebSocket)
			chat.Get("/history", cfg.Webchat.HandleHistory)
			chat.Group(func(send chi.Router) {
				if cfg.ChatLimiter != nil {
					send.Use(httpmiddleware.RateLimit(cfg.ChatLimiter))
				}
				send.Post("/message", cfg.Webchat.HandleMessage)
				send.Post("/clear", cfg.Webchat.HandleClear)
			})
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
