package main

import (
	"context"
	"encoding/json"
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
	"github.com/opskap1/temnos/services/notify/internal/dispatch"
	"github.com/opskap1/temnos/services/notify/internal/repository"
	"github.com/opskap1/temnos/services/notify/internal/sender"
)

// dispatchTimeout bounds a single campaign delivery run.
const dispatchTimeout = 5 * time.Minute

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

	dispatcher := dispatch.New(repository.NewDispatchRepository(pool), sender.NewRegistry(cfg))

	// Queue groups spread campaign work across replicas without double delivery.
	err = eventBus.QueueSubscribe(events.CampaignDispatchRequested, "notify-workers", func(msg *events.Message) {
		var evt events.CampaignDispatchRequestedEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			logger.Error("Malformed dispatch request", "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		if _, err := dispatcher.DispatchCampaign(ctx, &evt); err != nil {
			logger.Error("Campaign dispatch failed", "error", err, "campaign_id", evt.CampaignID)
		}
	})
	if err != nil {
		logger.Error("Failed to subscribe to dispatch requests", "error", err)
		os.Exit(1)
	}

	err = eventBus.QueueSubscribe(events.NotifySend, "notify-workers", func(msg *events.Message) {
		var evt events.NotificationEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			logger.Error("Malformed notification event", "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := dispatcher.SendNotification(ctx, &evt); err != nil {
			logger.Error("Notification send failed", "error", err, "channel", evt.Channel)
		}
	})
	if err != nil {
		logger.Error("Failed to subscribe to notifications", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(mw.Health)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:         ":8086",
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down notify service...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting notify service", "port", 8086)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
