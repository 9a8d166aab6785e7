package cache

import (
	"context"
	"fmt"
	"log/slog"

	"iot-monitor/internal/analytics"
	"iot-monitor/internal/config"
	"iot-monitor/internal/models"
)

// Backend is a store that serves the dashboard, accepts simulator writes and owns a connection.
type Backend interface {
	analytics.Store
	Record(ctx context.Context, id string, reading models.Reading, state string) error
	Close() error
}

// Open connects to the backend selected in cfg.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "redis", "":
		return NewRedisClient(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
	case "mongo":
		return NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, log)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
