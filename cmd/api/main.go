package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blenvi/blenvi/internal/app/migrate"
	"github.com/blenvi/blenvi/internal/catalog"
	httpx "github.com/blenvi/blenvi/internal/http"
	"github.com/blenvi/blenvi/internal/repository/postgres"
	"github.com/blenvi/blenvi/internal/service/auth"
	"github.com/blenvi/blenvi/internal/service/discussion"
	"github.com/blenvi/blenvi/internal/service/integration"
	"github.com/blenvi/blenvi/internal/service/overview"
	"github.com/blenvi/blenvi/internal/service/session"
	"github.com/blenvi/blenvi/internal/ws"
	"github.com/blenvi/blenvi/pkg/config"
	"github.com/blenvi/blenvi/pkg/crypto"
	"github.com/blenvi/blenvi/pkg/logger"
)

const sessionSweepEvery = 5 * time.Minute

func main() {
	config.LoadDotEnv()
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Error("failed to load catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}
	defs, err := integration.DefaultDefinitions()
	if err != nil {
		log.Error("failed to load integration definitions", "error", err)
		os.Exit(1)
	}
	sealer, err := crypto.NewSealer(cfg.SecretsKey)
	if err != nil {
		log.Error("invalid integration secrets key", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()
	defer hub.Close()

	authSvc := auth.New(repo, nil, log.With("component", "auth"), cfg)
	integrationSvc := integration.New(defs, repo, sealer, hub, log.With("component", "integration"))
	discussionSvc := discussion.New(repo, hub, log.With("component", "discussion"))
	overviewSvc := overview.New(cat, defs, integrationSvc, log.With("component", "overview"))
	sessions := session.NewRegistry(cat, repo, session.NewHubNotifier(hub, log), log.With("component", "session"))
	go sweepSessions(ctx, sessions, cfg.SessionIdleTimeout)

	var limiter httpx.RateLimiter
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Dependencies{
		Logger:         log,
		Auth:           authSvc,
		Catalog:        cat,
		Sessions:       sessions,
		Integrations:   integrationSvc,
		Discussion:     discussionSvc,
		Overview:       overviewSvc,
		Hub:            hub,
		Limiter:        limiter,
		DBHealth:       pool.Ping,
		SSEHeartbeat:   cfg.SSEHeartbeat,
		AllowedOrigins: splitOrigins(cfg.AllowedOrigins),
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "teams", len(cat.Teams()))
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func sweepSessions(ctx context.Context, sessions *session.Registry, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(sessionSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep(maxIdle)
		}
	}
}

func splitOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
