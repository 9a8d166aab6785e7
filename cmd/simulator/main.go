package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"iot-monitor/internal/cache"
	"iot-monitor/internal/config"
	"iot-monitor/internal/simulator"
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

	if cfg.Store.Backend == "memory" {
		log.Error("the simulator needs a shared store; memory backend is process-local")
		os.Exit(1)
	}
	store, err := cache.Open(ctx, cfg.Store, log)
	if err != nil {
		log.Error("failed to connect to store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	sim := simulator.New(store, simulator.Config{
		SensorIDs:        cfg.Sensors.IDs,
		Interval:         cfg.Simulator.Interval,
		ScenarioDuration: cfg.Simulator.ScenarioDuration,
		Voltage:          cfg.Simulator.Voltage,
		Seed:             cfg.Simulator.Seed,
	}, log)

	if err := sim.Run(ctx); err != nil {
		log.Error("simulator failed", "error", err)
		os.Exit(1)
	}
}
