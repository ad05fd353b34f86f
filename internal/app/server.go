package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kelechi-nwosu/enrichd/internal/api/handlers"
	appMiddleware "github.com/kelechi-nwosu/enrichd/internal/api/middlewares"
	"github.com/kelechi-nwosu/enrichd/internal/config"
	"github.com/kelechi-nwosu/enrichd/internal/core"
	"github.com/kelechi-nwosu/enrichd/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, processor *services.NotificationProcessor, subscriptions *services.SubscriptionManager, driveClient core.DriveClient, answerer *services.QueryAnswerer, logger *zap.Logger) *Server {
	webhookHandler := handlers.NewWebhookHandler(processor, logger)
	subHandler := handlers.NewSubscriptionHandler(subscriptions, driveClient, handlers.SubscriptionHandlerConfig{
		RenewThreshold: cfg.RenewThreshold,
		SiteID:         cfg.SiteID,
		DriveID:        cfg.DriveID,
	}, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/api/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/api/notifications", webhookHandler.Validate)
	r.Post("/api/notifications", webhookHandler.Receive)
	r.Post("/api/subscriptions", subHandler.Create)

	r.Group(func(query chi.Router) {
		query.Use(appMiddleware.TenantMiddleware(cfg.JWTSecret))
		if answerer != nil {
			queryHandler := handlers.NewQueryHandler(answerer, logger)
			query.Post("/api/query", queryHandler.Query)
		} else {
			query.Post("/api/query", func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "query is unavailable: no AI provider configured", http.StatusServiceUnavailable)
			})
		}
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, logger: logger}
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
