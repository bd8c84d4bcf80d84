package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oddsworth/cardseer/internal/auth"
	"github.com/oddsworth/cardseer/internal/config"
	"github.com/oddsworth/cardseer/internal/handler"
	"github.com/oddsworth/cardseer/internal/logger"
	"github.com/oddsworth/cardseer/internal/middleware"
	"github.com/oddsworth/cardseer/internal/repository/postgres"
	redisrepo "github.com/oddsworth/cardseer/internal/repository/redis"
	"github.com/oddsworth/cardseer/internal/service"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Repos
	sessionRepo := postgres.NewSessionRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	sessionSvc := service.NewSessionService(sessionRepo, redisClient, wsHub)

	// Handlers
	authHandler := handler.NewAuthHandler(jwtMgr)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("POST /auth/token", authHandler.IssueToken)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("POST /sessions", sessionHandler.CreateSession)
	api.HandleFunc("GET /sessions", sessionHandler.ListSessions)
	api.HandleFunc("GET /sessions/{id}", sessionHandler.GetSession)
	api.HandleFunc("POST /sessions/{id}/events", sessionHandler.ApplyEvent)
	api.HandleFunc("GET /sessions/{id}/snapshot", sessionHandler.GetSnapshot)
	api.HandleFunc("GET /sessions/{id}/players/{player}/marginals", sessionHandler.GetMarginals)
	api.HandleFunc("GET /sessions/{id}/players/{player}/hand", sessionHandler.GetHand)
	api.HandleFunc("GET /sessions/{id}/players/{player}/confidence", sessionHandler.GetConfidence)
	api.HandleFunc("POST /sessions/{id}/finish", sessionHandler.FinishSession)
	api.HandleFunc("GET /sessions/{id}/replay", sessionHandler.ReplaySession)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Rebuild live trackers from Redis event logs after restart
	if err := sessionSvc.RecoverActiveSessions(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover active sessions (non-fatal)")
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
