package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config stores runtime settings loaded from environment variables.
type Config struct {
	HTTPAddr              string        `env:"HTTP_ADDR" envDefault:":8099"`
	DBPath                string        `env:"DB_PATH" envDefault:"/data/att_presence.db"`
	AddonOptionsPath      string        `env:"ADDON_OPTIONS_PATH" envDefault:"/data/options.json"`
	ConfigRefreshInterval time.Duration `env:"CONFIG_REFRESH_INTERVAL" envDefault:"60s"`
	LogLevelName          string        `env:"LOG_LEVEL" envDefault:"info"`
	HABaseURL             string        `env:"HA_BASE_URL" envDefault:"http://supervisor/core"`
	SupervisorToken       string        `env:"SUPERVISOR_TOKEN"`
	RouterTimeout         time.Duration `env:"ROUTER_TIMEOUT" envDefault:"30s"`
	OUIPath               string        `env:"OUI_PATH"`
	MQTT                  MQTT          `envPrefix:"MQTT_"`
}

// MQTT holds broker settings. Publishing is disabled while Host is empty.
type MQTT struct {
	Host            string `env:"HOST"`
	Port            int    `env:"PORT" envDefault:"1883"`
	Username        string `env:"USERNAME"`
	Password        string `env:"PASSWORD"`
	ClientID        string `env:"CLIENT_ID" envDefault:"att-presence"`
	DiscoveryPrefix string `env:"DISCOVERY_PREFIX" envDefault:"homeassistant"`
	NodeID          string `env:"NODE_ID" envDefault:"att_router"`
}

// Load builds Config from environment variables using stable defaults.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.ConfigRefreshInterval <= 0 {
		return Config{}, fmt.Errorf("CONFIG_REFRESH_INTERVAL must be positive, got %s", cfg.ConfigRefreshInterval)
	}
	if cfg.RouterTimeout <= 0 {
		return Config{}, fmt.Errorf("ROUTER_TIMEOUT must be positive, got %s", cfg.RouterTimeout)
	}
	cfg.HABaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.HABaseURL), "/")
	cfg.SupervisorToken = strings.TrimSpace(cfg.SupervisorToken)
	cfg.MQTT.Host = strings.TrimSpace(cfg.MQTT.Host)
	return cfg, nil
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func (c Config) MQTTEnabled() bool {
	return c.MQTT.Host != ""
}

func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevelName)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
