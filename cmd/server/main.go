// Package main is the entry point for the auth API server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hausmeister-app/hausmeister/internal/config"
	"github.com/hausmeister-app/hausmeister/internal/database"
	"github.com/hausmeister-app/hausmeister/internal/handler"
	"github.com/hausmeister-app/hausmeister/internal/middleware"
	"github.com/hausmeister-app/hausmeister/internal/repository"
	"github.com/hausmeister-app/hausmeister/internal/service"
	"github.com/hausmeister-app/hausmeister/internal/session"
)

func main() {
	// Setup structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Starting auth API",
		slog.String("environment", cfg.Server.Environment),
		slog.Int("port", cfg.Server.Port),
	)

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	// Connect to Redis (optional cache tier)
	var redis *database.Redis
	var cache session.Cache
	if cfg.Redis.Enabled {
		redis, err = database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redis.Close()
		cache = session.NewRedisCache(redis, cfg.Session.CacheTTL)
		logger.Info("Connected to Redis")
	} else {
		logger.Info("Redis disabled, sessions served from PostgreSQL only")
	}

	// Wire repositories and services
	pool := db.Pool()
	users := repository.NewUserRepository(pool)
	sessions := repository.NewSessionRepository(pool)
	resets := repository.NewResetRepository(pool)
	passkeys := repository.NewPasskeyRepository(pool)

	store := session.NewStore(sessions, cache)
	authService := service.NewAuthService(users, resets, store, logger)
	webauthnService, err := service.NewWebAuthnService(cfg.WebAuthn, users, passkeys, store, logger)
	if err != nil {
		log.Fatalf("Failed to configure WebAuthn: %v", err)
	}

	// Bootstrap admin account on an empty database
	if cfg.Admin.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		created, err := authService.BootstrapAdmin(ctx, cfg.Admin)
		cancel()
		if err != nil {
			log.Fatalf("Failed to bootstrap admin: %v", err)
		}
		if created {
			logger.Info("Bootstrap admin account created")
		}
	}

	// Setup router
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	authHandler := handler.NewAuthHandler(authService, cfg.Session)
	webauthnHandler := handler.NewWebAuthnHandler(webauthnService, cfg.Session)

	r.Group(func(r chi.Router) {
		if cfg.RateLimit.Enabled && redis != nil {
			r.Use(middleware.RateLimit(redis, cfg.RateLimit))
		}
		r.Use(session.Extract(store, cfg.Session.CookieName))

		r.Mount("/", authHandler.Routes())
		r.Mount("/webauthn", webauthnHandler.Routes())
	})

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down server", slog.String("signal", sig.String()))

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	logger.Info("Server stopped gracefully")
}
