package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Env string

const (
	Dev        Env = "development"
	Test       Env = "test"
	Preview    Env = "preview"
	Production Env = "production"
)

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Name     string
}

type SQLiteConfig struct {
	// Path is the sqlite database file (or ":memory:"). Empty disables the
	// sqlite usage store.
	Path string
}

type RedisConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Scheme   string
}

type RabbitMQConfig struct {
	URL             string
	Exchange        string
	Queue           string
	RoutingKey      string
	Prefetch        int
	DeclareTopology bool
}

type BackendConfig struct {
	// BaseURL points at the deployed diagnostic backend. When empty and the
	// app runs in development, the client falls back to the local port.
	BaseURL   string
	LocalPort int
	TimeoutMS int
}

type Config struct {
	AppName  string
	ENV      Env
	AppPort  int
	LogLevel string

	// Postgres (optional; enabled only when DB_HOST + DB_NAME are set).
	DB DBConfig

	// Local sqlite usage store (optional; enabled when SQLITE_PATH is set).
	SQLite SQLiteConfig

	// Redis (optional; enabled only when REDIS_HOST is set).
	Redis RedisConfig

	// RabbitMQ (optional; enabled only when RABBITMQ_URL is set).
	RabbitMQ RabbitMQConfig

	Backend BackendConfig
}

func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "netdiag-orchestrator")
	v.SetDefault("APP_ENV", string(Dev))
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_SCHEME", "redis")

	v.SetDefault("RABBITMQ_EXCHANGE", "events")
	v.SetDefault("RABBITMQ_QUEUE", "diag.bulk.requested.v1")
	v.SetDefault("RABBITMQ_ROUTING_KEY", "diag.bulk.requested.v1")
	v.SetDefault("RABBITMQ_PREFETCH", 1)
	v.SetDefault("RABBITMQ_DECLARE_TOPOLOGY", true)

	v.SetDefault("BACKEND_LOCAL_PORT", 3001)
	v.SetDefault("BACKEND_TIMEOUT_MS", 30000)

	return v
}

func NewConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppName:  v.GetString("APP_NAME"),
		ENV:      envFromString(v.GetString("APP_ENV")),
		AppPort:  v.GetInt("APP_PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		DB: DBConfig{
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
		},

		SQLite: SQLiteConfig{
			Path: v.GetString("SQLITE_PATH"),
		},

		Redis: RedisConfig{
			User:     v.GetString("REDIS_USER"),
			Password: v.GetString("REDIS_PASSWORD"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Scheme:   v.GetString("REDIS_SCHEME"),
		},

		RabbitMQ: RabbitMQConfig{
			URL:             v.GetString("RABBITMQ_URL"),
			Exchange:        v.GetString("RABBITMQ_EXCHANGE"),
			Queue:           v.GetString("RABBITMQ_QUEUE"),
			RoutingKey:      v.GetString("RABBITMQ_ROUTING_KEY"),
			Prefetch:        v.GetInt("RABBITMQ_PREFETCH"),
			DeclareTopology: v.GetBool("RABBITMQ_DECLARE_TOPOLOGY"),
		},

		Backend: BackendConfig{
			BaseURL:   v.GetString("BACKEND_BASE_URL"),
			LocalPort: v.GetInt("BACKEND_LOCAL_PORT"),
			TimeoutMS: v.GetInt("BACKEND_TIMEOUT_MS"),
		},
	}

	if cfg.AppPort <= 0 || cfg.AppPort > 65535 {
		return nil, fmt.Errorf("invalid APP_PORT %d", cfg.AppPort)
	}
	if cfg.DB.Port <= 0 || cfg.DB.Port > 65535 {
		return nil, fmt.Errorf("invalid DB_PORT %d", cfg.DB.Port)
	}
	if cfg.Redis.Port <= 0 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid REDIS_PORT %d", cfg.Redis.Port)
	}
	if cfg.Backend.LocalPort <= 0 || cfg.Backend.LocalPort > 65535 {
		return nil, fmt.Errorf("invalid BACKEND_LOCAL_PORT %d", cfg.Backend.LocalPort)
	}

	return cfg, nil
}

func envFromString(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return Production
	case "preview":
		return Preview
	case "test":
		return Test
	default:
		return Dev
	}
}
