package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration. Values come from an optional YAML file
// and may be overridden by environment variables.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string

	Notify struct {
		WebhookURL string
		Timeout    time.Duration
	}
}

// fileConfig is the YAML schema. Durations are strings ("30s") so they can be
// parsed with time.ParseDuration.
type fileConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	DatabaseURL string `yaml:"database_url"`
	JWTSecret   string `yaml:"jwt_secret"`

	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"notify"`
}

// Load reads configuration from path (missing file is not an error) and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.HTTPAddr = ":8080"
	cfg.Notify.Timeout = 5 * time.Second

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			var file fileConfig
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
			if file.HTTPAddr != "" {
				cfg.HTTPAddr = file.HTTPAddr
			}
			if file.DatabaseURL != "" {
				cfg.DatabaseURL = file.DatabaseURL
			}
			if file.JWTSecret != "" {
				cfg.JWTSecret = file.JWTSecret
			}
			if file.Notify.WebhookURL != "" {
				cfg.Notify.WebhookURL = file.Notify.WebhookURL
			}
			if file.Notify.Timeout != "" {
				timeout, err := time.ParseDuration(file.Notify.Timeout)
				if err != nil {
					return nil, fmt.Errorf("config: parse %s: notify.timeout: %w", path, err)
				}
				cfg.Notify.Timeout = timeout
			}
		}
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.Notify.WebhookURL = getenvDefault("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.Timeout = getenvDuration("NOTIFY_TIMEOUT", cfg.Notify.Timeout)

	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: AUTH_JWT_SECRET is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
