package main

import (
	"context"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/piresc/tumpang/internal/pkg/config"
	"github.com/piresc/tumpang/internal/pkg/credentials"
	"github.com/piresc/tumpang/internal/pkg/http"
	"github.com/piresc/tumpang/internal/pkg/logger"
	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/internal/pkg/websocket"
	locationGW "github.com/piresc/tumpang/services/location/gateway"
	"github.com/piresc/tumpang/services/location/source"
	locationUC "github.com/piresc/tumpang/services/location/usecase"
	"github.com/piresc/tumpang/services/rides/gateway"
	"github.com/piresc/tumpang/services/rides/usecase"
	"github.com/piresc/tumpang/services/routing"
)

func main() {
	appName := "driver-engine"
	configPath := config.GetEnv("CONFIG_PATH", ".env")
	configs := config.InitConfig(configPath)

	// Initialize Zap logger
	zapLogger, err := logger.InitZapLoggerFromConfig(configs)
	if err != nil {
		log.Fatalf("Failed to create Zap logger: %v", err)
	}
	defer zapLogger.Close()
	logger.SetGlobalLogger(zapLogger)

	zapLogger.Info("Starting application",
		zap.String("app", appName),
		zap.String("version", configs.App.Version),
		zap.String("environment", configs.App.Environment),
	)

	// Credential store shared by the REST client and the push channel
	credStore := credentials.NewFileStore(configs.Credentials.FilePath)

	sessionGone := make(chan struct{}, 1)
	client := http.NewClient(configs.API.BaseURL, credStore, func() {
		select {
		case sessionGone <- struct{}{}:
		default:
		}
	})
	client.SetTimeout(configs.API.Timeout)

	// Push channel
	channel := websocket.NewChannel(configs.WS.URL, credStore, configs.WS.ReconnectDelay)
	defer channel.Close()
	channel.Connect()

	// Route engine and ride machine
	engine := routing.NewEngine(client)
	rideGW := gateway.NewRideGW(client)

	machine := usecase.NewDriverMachine(configs, rideGW, engine, channel)
	machine.OnPhaseChange(func(phase models.RidePhase) {
		zapLogger.Info("Ride phase changed", zap.String("phase", string(phase)))
	})
	machine.Start()
	defer machine.Stop()

	// Position tracking feeding both the backend and the ride machine
	start := models.Location{
		Latitude:  config.GetEnvAsFloat("DRIVER_START_LAT", 28.6139),
		Longitude: config.GetEnvAsFloat("DRIVER_START_LON", 77.2090),
	}
	positions := source.NewSimulatedSource(start, time.Second)
	locGW := locationGW.NewLocationGW(client)

	tracker := locationUC.NewTracker(configs, positions, locGW, channel, func(err error) {
		zapLogger.Warn("Location tracking error", zap.Error(err))
	})
	if err := tracker.Start(func(fix models.LocationFix) {
		machine.SetLocation(fix.Location)
	}); err != nil {
		zapLogger.Fatal("Failed to start location tracking", zap.Error(err))
	}
	defer tracker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), configs.API.Timeout)
	if err := tracker.SetAvailable(ctx, true); err != nil {
		zapLogger.Warn("Failed to go online", zap.Error(err))
	}
	cancel()

	// Diagnostics endpoint
	if configs.Metrics.Enabled {
		go func() {
			mux := nethttp.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			zapLogger.Info("Metrics endpoint listening", zap.String("addr", configs.Metrics.Addr))
			if err := nethttp.ListenAndServe(configs.Metrics.Addr, mux); err != nil {
				zapLogger.Error("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		zapLogger.Info("Shutting down")
	case <-sessionGone:
		zapLogger.Warn("Session invalidated by backend, shutting down")
	}

	ctx, cancel = context.WithTimeout(context.Background(), configs.API.Timeout)
	if err := tracker.SetAvailable(ctx, false); err != nil {
		zapLogger.Warn("Failed to go offline", zap.Error(err))
	}
	cancel()
}
