package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opskap1/temnos/pkg/cache"
	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/database"
	"github.com/opskap1/temnos/pkg/events"
	"github.com/opskap1/temnos/pkg/logger"
	mw "github.com/opskap1/temnos/pkg/middleware"
	"github.com/opskap1/temnos/services/tokens/internal/handlers"
	"github.com/opskap1/temnos/services/tokens/internal/repository"
	"github.com/opskap1/temnos/services/tokens/internal/service"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	tokenRepo := repository.NewTokenRepository(pool)
	tokenService := service.NewTokenService(tokenRepo, eventBus, cfg)

	h := handlers.New(tokenService, cache.NewRateLimiter(redisClient), cfg)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("tokens"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(mw.Health)
	r.Mount("/", h.Routes())

	// Background sweep: expired records, used or not, across all tenants.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go sweepLoop(sweepCtx, tokenRepo, cfg.Tokens.SweepInterval)

	srv := &http.Server{
		Addr:         ":8083",
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down tokens service...")
		stopSweep()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Tokens service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting tokens service", "port", "8083")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Tokens service error", "error", err)
		os.Exit(1)
	}
}

func sweepLoop(ctx context.Context, repo repository.TokenRepository, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.SweepExpired(ctx)
			if err != nil {
				logger.Error("Token sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("Token sweep completed", "deleted", deleted)
			}
		}
	}
}
