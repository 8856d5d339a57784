// PNEUMA - interactive fiction terminal server
package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/pneuma-terminal/internal/api"
	"github.com/ashureev/pneuma-terminal/internal/completion"
	"github.com/ashureev/pneuma-terminal/internal/config"
	"github.com/ashureev/pneuma-terminal/internal/game"
	"github.com/ashureev/pneuma-terminal/internal/identity"
	"github.com/ashureev/pneuma-terminal/internal/middleware"
	"github.com/ashureev/pneuma-terminal/internal/store"
	"github.com/ashureev/pneuma-terminal/internal/terminal"
	"github.com/ashureev/pneuma-terminal/internal/transcript"
	"github.com/ashureev/pneuma-terminal/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

const limiterSweepInterval = 5 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model", cfg.Completion.Model)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	transcripts, err := transcript.NewLogger(cfg.Transcripts(), logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	// Initialize services.
	sm := terminal.NewSessionManager()
	completionCfg := cfg.CompletionClient()
	newCompleter := func(l *slog.Logger) game.Completer {
		rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		return completion.New(completionCfg, rng, completion.WithLogger(l))
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, sm, cfg)
	gameHandler := api.NewGameHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo, sm)

	wsHandler := terminal.NewWebSocketHandler(sm, newCompleter, cfg.Game(), cfg.FrontendURL, cfg.IsDevelopment())
	wsHandler.SetRepository(repo)
	wsHandler.SetTranscripts(transcripts)
	wsHandler.SetTyping(cfg.Typewriter())
	wsHandler.SetFrameLimit(rate.Limit(cfg.RateLimit.FramesPerSecond), cfg.RateLimit.FrameBurst)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, limiterSweepInterval)

	allowedOrigins := []string{"*"}
	if !cfg.IsDevelopment() {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// API routes are rate limited per anonymous user.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))
		gameHandler.RegisterRoutes(r)
	})

	// WebSocket endpoint.
	r.Get("/ws/terminal", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSocket sessions are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sweep idle rate limiter buckets.
	go func() {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Sweep(); n > 0 {
					slog.Debug("Swept idle rate limiters", "removed", n)
				}
			}
		}
	}()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...", "sessions", sm.Count())
	sm.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
