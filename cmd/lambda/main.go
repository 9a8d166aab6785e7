package main

import (
	"context"
	"log/slog"
	"os"

	"iot-monitor/internal/analytics"
	"iot-monitor/internal/api"
	"iot-monitor/internal/auth"
	"iot-monitor/internal/cache"
	"iot-monitor/internal/config"
	"iot-monitor/internal/models"
	"iot-monitor/internal/websocket"

	"github.com/aws/aws-lambda-go/lambda"
)

// The store connection is opened once per container and reused across invocations. The live
// websocket feed is not available behind API Gateway proxy integration.
func main() {
	cfg, err := config.Load(os.Getenv("IOT_CONFIG_PATH"))
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Log)

	store, err := cache.Open(context.Background(), cfg.Store, log)
	if err != nil {
		log.Error("failed to connect to store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("configuring auth", "error", err)
		os.Exit(1)
	}

	monitor := analytics.NewMonitor(store, store, cfg.Sensors.IDs,
		models.Threshold{Current: cfg.Sensors.DefaultCurrent, Power: cfg.Sensors.DefaultPower},
		analytics.WithLogger(log))
	server := api.NewServer(monitor, authManager, websocket.NewHub(log), api.Options{
		ExportLimit: cfg.Export.Limit,
	}, log)

	lambda.Start(api.LambdaHandler(server.Handler()))
}
