package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/logger"
	"github.com/opskap1/temnos/pkg/qr"
	"github.com/opskap1/temnos/pkg/scanner"
	"github.com/opskap1/temnos/services/scanstation/internal/station"
)

func main() {
	cfg := config.Load()

	if cfg.Station.StationToken == "" || cfg.Station.RestaurantID == "" {
		logger.Error("Station is not paired: STATION_TOKEN and STATION_RESTAURANT_ID are required")
		os.Exit(1)
	}

	mode := scanner.ModeCustomer
	if cfg.Station.Mode == "redemption" {
		mode = scanner.ModeRedemption
	}

	verifier := station.NewHTTPVerifier(cfg.Station.TokensURL, cfg.Station.StationToken)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting scan station",
		"restaurant_id", cfg.Station.RestaurantID,
		"mode", string(mode),
		"frame_dir", cfg.Station.FrameDir,
	)

	for ctx.Err() == nil {
		runSession(ctx, cfg, mode, verifier)
	}

	logger.Info("Scan station stopped")
}

// runSession drives one complete scan session. The camera is created fresh
// each time; a stopped capture device is not reusable.
func runSession(ctx context.Context, cfg *config.Config, mode scanner.Mode, verifier scanner.Verifier) {
	ctrl, err := scanner.New(scanner.Options{
		RestaurantID: cfg.Station.RestaurantID,
		Mode:         mode,
		Camera:       station.NewDirectoryCamera(cfg.Station.FrameDir),
		Decoder:      scanner.NewZXingDecoder(),
		Verifier:     verifier,
		OnScanSuccess: func(customerID, restaurantID string, payload *qr.Payload) {
			logger.Info("Scan accepted",
				"customer_id", customerID,
				"restaurant_id", restaurantID,
				"redemption", payload.IsRedemption(),
			)
		},
		OnStatus: func(state scanner.State, message string) {
			switch {
			case state == scanner.StateError:
				logger.Error("Scan session dead", "message", message)
			case state == scanner.StateScanning && message != "":
				logger.Warn("Scan rejected", "message", message)
			default:
				logger.Debug("Scanner state changed", "state", string(state))
			}
		},
	})
	if err != nil {
		logger.Error("Failed to build scanner", "error", err)
		os.Exit(1)
	}

	if err := ctrl.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("Scan session failed", "error", err, "message", ctrl.Message())

		// Fatal camera errors loop fast without this.
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	}
}
