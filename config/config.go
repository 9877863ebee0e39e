package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration fields for the application.
type Config struct {
	Port             string
	DatabaseDriver   string // "sqlite" or "postgres"
	DatabaseURL      string
	GatewayBaseURL   string
	GatewayAPIKey    string
	AutoreplyBaseURL string
	AutoreplyAPIKey  string
	RabbitMQURL      string
	RabbitMQQueue    string
	NotifyOrgID      string // when set, the local notification poller runs for this organization
	LogLevel         string
	LogFormat        string // "console" or "json"
}

// LoadConfig loads configuration from environment variables. A .env file is
// loaded first when present; environment variables take precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Port:             os.Getenv("PORT"),
		DatabaseDriver:   os.Getenv("DB_DRIVER"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		GatewayBaseURL:   os.Getenv("GATEWAY_BASE_URL"),
		GatewayAPIKey:    os.Getenv("GATEWAY_API_KEY"),
		AutoreplyBaseURL: os.Getenv("AUTOREPLY_BASE_URL"),
		AutoreplyAPIKey:  os.Getenv("AUTOREPLY_API_KEY"),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		RabbitMQQueue:    os.Getenv("RABBITMQ_QUEUE"),
		NotifyOrgID:      os.Getenv("NOTIFY_ORG_ID"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		LogFormat:        os.Getenv("LOG_FORMAT"),
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "sqlite"
	}
	if cfg.DatabaseURL == "" && cfg.DatabaseDriver == "sqlite" {
		cfg.DatabaseURL = "zapdesk.db"
	}

	if cfg.GatewayBaseURL == "" {
		return nil, fmt.Errorf("GATEWAY_BASE_URL is required")
	}
	if cfg.GatewayAPIKey == "" {
		return nil, fmt.Errorf("GATEWAY_API_KEY is required")
	}
	if cfg.AutoreplyBaseURL == "" {
		return nil, fmt.Errorf("AUTOREPLY_BASE_URL is required")
	}

	return cfg, nil
}
