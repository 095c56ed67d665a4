// Package main is the entry point for the dispatch API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/farelane/dispatch/backend/internal/config"
	"github.com/farelane/dispatch/backend/internal/events"
	"github.com/farelane/dispatch/backend/internal/handler"
	"github.com/farelane/dispatch/backend/internal/limiter"
	"github.com/farelane/dispatch/backend/internal/middleware"
	"github.com/farelane/dispatch/backend/internal/repo"
	"github.com/farelane/dispatch/backend/internal/service"
	"github.com/farelane/dispatch/backend/internal/startauth"
	"github.com/farelane/dispatch/backend/migrations"
)

// maxBodyBytes caps request bodies. The largest legitimate body is a verify
// request carrying a QR token, well under a kilobyte.
const maxBodyBytes = 64 << 10

// Verification attempt budget: a 6-digit PIN in a 5-minute window survives
// brute force comfortably at 5 guesses per window.
const (
	attemptLimit  = 5
	attemptWindow = 5 * time.Minute
)

func main() {
	// --- Config -----------------------------------------------------------
	// .env is a local-development convenience; in deployment the variables
	// come from the environment and the file is absent.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// log/slog is the stdlib structured logger introduced in Go 1.21.
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Migrations -------------------------------------------------------
	// Applied at startup from the embedded FS so the binary is self-contained.
	// goose's version table makes this idempotent across replicas.
	if err := runMigrations(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// --- Database ---------------------------------------------------------
	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately — the first query does.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	// --- Attempt limiter --------------------------------------------------
	// Redis is optional: without it the service still runs, just without
	// brute-force protection on verification.
	var attempts service.AttemptLimiter = limiter.Disabled{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		attempts = limiter.NewAttempts(rdb, attemptLimit, attemptWindow)
		slog.Info("redis connection established", "addr", cfg.RedisAddr)
	} else {
		slog.Warn("REDIS_ADDR not set; verification attempt limiting disabled")
	}

	// --- Event publisher --------------------------------------------------
	var publisher service.EventPublisher = events.NopPublisher{Log: logger}
	if cfg.AMQPURL != "" {
		p, err := events.NewPublisher(cfg.AMQPURL)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
		slog.Info("rabbitmq connection established")
	} else {
		slog.Warn("AMQP_URL not set; trip events will be logged, not published")
	}

	// --- Services ---------------------------------------------------------
	tripService := service.NewTripService(repo.NewTripRepo(pool))
	startAuthService := service.NewStartAuthService(
		repo.NewAuthorizationRepo(pool),
		tripService,
		startauth.DefaultPolicy(),
		attempts,
		publisher,
		logger,
	)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer.
	// RequestID generates a unique trace ID per request.
	// RealIP sets r.RemoteAddr from X-Forwarded-For / X-Real-IP (safe behind a proxy).
	// SlogLogger writes one structured JSON log line per request.
	// Recoverer catches panics and returns HTTP 500 instead of crashing.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(maxBodyBytes))

	r.Get("/healthz", handler.Health)

	server := handler.NewServer(startAuthService, tripService)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NewAuthenticator([]byte(cfg.JWTSecret)))
		r.Mount("/", server.Routes())
	})

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// runMigrations applies all pending migrations from the embedded FS.
// goose needs database/sql, not a pgx pool, so it gets its own short-lived
// connection.
func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return err
	}

	results, err := provider.Up(context.Background())
	if err != nil {
		return err
	}
	for _, res := range results {
		slog.Info("applied migration", "migration", res.Source.Path)
	}
	return nil
}
