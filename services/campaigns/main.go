package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/database"
	"github.com/opskap1/temnos/pkg/events"
	"github.com/opskap1/temnos/pkg/logger"
	mw "github.com/opskap1/temnos/pkg/middleware"
	"github.com/opskap1/temnos/services/campaigns/internal/handlers"
	"github.com/opskap1/temnos/services/campaigns/internal/repository"
	"github.com/opskap1/temnos/services/campaigns/internal/service"
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

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	campaignRepo := repository.NewCampaignRepository(pool)
	promoRepo := repository.NewPromoRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	campaignService := service.NewCampaignService(campaignRepo, customerRepo, auditRepo, eventBus)
	promoService := service.NewPromoService(promoRepo, auditRepo, eventBus)
	customerService := service.NewCustomerService(customerRepo)

	h := handlers.New(campaignService, promoService, customerService, cfg)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("campaigns"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(mw.Health)
	r.Mount("/", h.Routes())

	// Scheduler loop: promote due campaigns to sending.
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	go dispatchLoop(dispatchCtx, campaignService)

	srv := &http.Server{
		Addr:         ":8084",
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down campaigns service...")
		stopDispatch()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Campaigns service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting campaigns service", "port", "8084")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Campaigns service error", "error", err)
		os.Exit(1)
	}
}

func dispatchLoop(ctx context.Context, campaigns service.CampaignService) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dispatched, err := campaigns.DispatchDue(ctx)
			if err != nil {
				logger.Error("Campaign dispatch sweep failed", "error", err)
				continue
			}
			if dispatched > 0 {
				logger.Info("Campaigns dispatched", "count", dispatched)
			}
		}
	}
}
