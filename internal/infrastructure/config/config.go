package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Data      DataConfig
	Browser   BrowserConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// DataConfig holds data directory configuration.
type DataConfig struct {
	Dir string `envconfig:"DATA_DIR" default:"/data"`
}

// BrowserConfig holds browser process configuration.
type BrowserConfig struct {
	Binary       string        `envconfig:"FIREFOX_BIN" default:"firefox-esr"`
	Display      string        `envconfig:"VNC_DISPLAY" default:":1"`
	StopTimeout  time.Duration `envconfig:"STOP_TIMEOUT" default:"10s"`
	RestartMax   int           `envconfig:"RESTART_MAX" default:"5"`
	RestartBase  time.Duration `envconfig:"RESTART_BACKOFF" default:"1s"`
	RestartCap   time.Duration `envconfig:"RESTART_BACKOFF_CAP" default:"30s"`
	StableWindow time.Duration `envconfig:"RESTART_STABLE_WINDOW" default:"60s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Data: DataConfig{
			Dir: "/data",
		},
		Browser: BrowserConfig{
			Binary:       "firefox-esr",
			Display:      ":1",
			StopTimeout:  10 * time.Second,
			RestartMax:   5,
			RestartBase:  time.Second,
			RestartCap:   30 * time.Second,
			StableWindow: time.Minute,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
