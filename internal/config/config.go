package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Sensors   SensorsConfig   `mapstructure:"sensors"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Live      LiveConfig      `mapstructure:"live"`
	Export    ExportConfig    `mapstructure:"export"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"` // redis, mongo or memory
	Redis   struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Mongo struct {
		URI      string `mapstructure:"uri"`
		Database string `mapstructure:"database"`
	} `mapstructure:"mongo"`
}

type SensorsConfig struct {
	IDs            []string `mapstructure:"ids"`
	DefaultCurrent float64  `mapstructure:"default_current"`
	DefaultPower   float64  `mapstructure:"default_power"`
}

type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	JWTExpiration int    `mapstructure:"jwt_expiration"` // in minutes
	Users         []User `mapstructure:"users"`
}

// User is a dashboard login. Either Password or PasswordHash (bcrypt) must be set.
type User struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
}

type LiveConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type ExportConfig struct {
	Limit int `mapstructure:"limit"`
}

type SimulatorConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	ScenarioDuration time.Duration `mapstructure:"scenario_duration"`
	Voltage          float64       `mapstructure:"voltage"`
	Seed             uint64        `mapstructure:"seed"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// Load reads config.yaml from path if present, then IOT_* environment variables, on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.SetEnvPrefix("IOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if len(cfg.Sensors.IDs) == 0 {
		return nil, errors.New("sensors.ids must list at least one sensor")
	}
	if cfg.Simulator.Interval <= 0 {
		return nil, fmt.Errorf("simulator.interval must be positive, got %s", cfg.Simulator.Interval)
	}
	if cfg.Live.Interval <= 0 {
		return nil, fmt.Errorf("live.interval must be positive, got %s", cfg.Live.Interval)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "iot_monitor")

	v.SetDefault("sensors.ids", []string{"LAB-PC-01", "LAB-PC-02", "LAB-PC-03"})
	v.SetDefault("sensors.default_current", 11.0)
	v.SetDefault("sensors.default_power", 2420.0)

	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.jwt_expiration", 60)
	v.SetDefault("auth.users", []map[string]any{{"username": "admin", "password": "admin123"}})

	v.SetDefault("live.interval", 3*time.Second)
	v.SetDefault("export.limit", 1000)

	v.SetDefault("simulator.interval", 3*time.Second)
	v.SetDefault("simulator.scenario_duration", 30*time.Second)
	v.SetDefault("simulator.voltage", 220.0)
	v.SetDefault("simulator.seed", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// NewLogger builds the process logger: tint on a terminal, JSON when asked for.
func NewLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	}))
}
