package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"iot-monitor/internal/analytics"
	"iot-monitor/internal/api"
	"iot-monitor/internal/auth"
	"iot-monitor/internal/cache"
	"iot-monitor/internal/config"
	"iot-monitor/internal/models"
	"iot-monitor/internal/websocket"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, err := cache.Open(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("failed to connect to %s store: %w", cfg.Store.Backend, err)
	}
	defer store.Close()

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}

	monitor := analytics.NewMonitor(store, store, cfg.Sensors.IDs,
		models.Threshold{Current: cfg.Sensors.DefaultCurrent, Power: cfg.Sensors.DefaultPower},
		analytics.WithLogger(log))

	server := api.NewServer(monitor, authManager, websocket.NewHub(log), api.Options{
		ExportLimit:  cfg.Export.Limit,
		LiveInterval: cfg.Live.Interval,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, log)

	return server.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
}
