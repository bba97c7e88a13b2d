package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/opskap1/temnos/pkg/auth"
	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/logger"
	mw "github.com/opskap1/temnos/pkg/middleware"
	"github.com/opskap1/temnos/services/gateway/internal/handlers"
	"github.com/opskap1/temnos/services/gateway/internal/proxy"
)

func main() {
	cfg := config.Load()

	// localhost for development, service names in deployment
	var (
		authBaseURL      = getServiceURL("AUTH_SERVICE_URL", "http://localhost:8081")
		tokensBaseURL    = getServiceURL("TOKENS_SERVICE_URL", "http://localhost:8083")
		campaignsBaseURL = getServiceURL("CAMPAIGNS_SERVICE_URL", "http://localhost:8084")
		ordersBaseURL    = getServiceURL("ORDERS_SERVICE_URL", "http://localhost:8085")
	)

	h := handlers.New(
		proxy.NewServiceProxy(authBaseURL),
		proxy.NewServiceProxy(tokensBaseURL),
		proxy.NewServiceProxy(campaignsBaseURL),
		proxy.NewServiceProxy(ordersBaseURL),
		cfg,
	)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("gateway"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(mw.Health)

	r.Route("/v1", func(r chi.Router) {
		// Auth routes are public at the edge; the auth service protects
		// the pairing-code mint itself.
		r.HandleFunc("/auth/*", h.ProxyAuth)

		r.Route("/tokens", func(r chi.Router) {
			r.Use(h.RequireJWT(auth.RoleOwner, auth.RoleStaff))
			r.HandleFunc("/*", h.ProxyTokens)
		})

		r.Route("/scan", func(r chi.Router) {
			r.Use(h.RequireJWT(auth.RoleStation, auth.RoleStaff, auth.RoleOwner))
			r.HandleFunc("/*", h.ProxyTokens)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Use(h.RequireJWT(auth.RoleOwner, auth.RoleStaff))
			r.HandleFunc("/*", h.ProxyCampaigns)
			r.HandleFunc("/", h.ProxyCampaigns)
		})

		r.Route("/promos", func(r chi.Router) {
			r.Use(h.RequireJWT(auth.RoleOwner, auth.RoleStaff))
			r.HandleFunc("/*", h.ProxyCampaigns)
			r.HandleFunc("/", h.ProxyCampaigns)
		})

		r.Route("/customers", func(r chi.Router) {
			r.Use(h.RequireJWT(auth.RoleOwner, auth.RoleStaff))
			r.HandleFunc("/*", h.ProxyCampaigns)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(h.RequireJWT(auth.RoleOwner))
			r.HandleFunc("/*", h.ProxyOrders)
			r.HandleFunc("/", h.ProxyOrders)
		})

		// Stripe calls this directly; the orders service checks the
		// signature.
		r.Post("/payments/webhook", h.PaymentWebhook)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gateway service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Gateway shutdown error", "error", err)
		}
	}()

	logger.Info("Starting gateway service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Gateway server error", "error", err)
		os.Exit(1)
	}
}

func getServiceURL(envKey, fallback string) string {
	if url := os.Getenv(envKey); url != "" {
		return url
	}
	return fallback
}
