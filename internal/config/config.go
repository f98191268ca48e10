// Package config loads and validates the application configuration from a
// YAML file, with environment variable overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port int    `yaml:"port" validate:"required,min=1,max=65535"`
	Env  string `yaml:"env" validate:"omitempty,oneof=development test production"`
}

type RedisConfig struct {
	URL string `yaml:"url" validate:"required"`
}

// FeedConfig describes one transit system: where its static bundle and the
// three GTFS-RT feeds live, and which IANA timezone its schedule uses.
type FeedConfig struct {
	StaticURL           string `yaml:"static_url" validate:"required,url"`
	TripUpdatesURL      string `yaml:"trip_updates_url" validate:"required,url"`
	VehiclePositionsURL string `yaml:"vehicle_positions_url" validate:"required,url"`
	ServiceAlertsURL    string `yaml:"service_alerts_url" validate:"omitempty,url"`
	Timezone            string `yaml:"timezone" validate:"required"`
	AuthHeaderKey       string `yaml:"auth_header_key"`
	AuthHeaderValue     string `yaml:"auth_header_value"`
}

// RefreshConfig holds the feeder cadences. Intervals are in seconds to keep
// the YAML obvious; CleanupTimeOfDay is a GTFS-style local time-of-day.
type RefreshConfig struct {
	StaticIntervalSeconds   int    `yaml:"static_interval_seconds" validate:"min=0"`
	RealtimeIntervalSeconds int    `yaml:"realtime_interval_seconds" validate:"min=0"`
	AlertsIntervalSeconds   int    `yaml:"alerts_interval_seconds" validate:"min=0"`
	CleanupTimeOfDay        string `yaml:"cleanup_time_of_day"`
	WindowDays              int    `yaml:"window_days" validate:"min=0"`
	RetentionDays           int    `yaml:"retention_days" validate:"min=0"`
}

// NotifyConfig configures the webhook fired when static data changes, so
// downstream renderers can invalidate cached stop lists and route maps.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
	Token      string `yaml:"token"`
}

type RateLimitConfig struct {
	RequestsPerSecond int      `yaml:"requests_per_second" validate:"min=0"`
	ExemptIPs         []string `yaml:"exempt_ips"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Feed      FeedConfig      `yaml:"feed"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Notify    NotifyConfig    `yaml:"notify"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// StopNameOverrides maps stop IDs to hand-maintained display names for
	// duplicate stop names the destination heuristic cannot resolve.
	StopNameOverrides map[string]string `yaml:"stop_name_overrides"`

	// HubDestinations are headsign labels of central transfer points used to
	// anchor inbound/outbound disambiguation.
	HubDestinations []string `yaml:"hub_destinations"`
}

// Load reads the YAML file at path, applies environment overrides, fills in
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	// Load .env into the environment (ignore if missing)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if token := os.Getenv("NOTIFY_TOKEN"); token != "" {
		cfg.Notify.Token = token
	}
	if v := os.Getenv("FEED_AUTH_HEADER_VALUE"); v != "" {
		cfg.Feed.AuthHeaderValue = v
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://127.0.0.1:6379"
	}
	if cfg.Refresh.StaticIntervalSeconds == 0 {
		cfg.Refresh.StaticIntervalSeconds = 600
	}
	if cfg.Refresh.RealtimeIntervalSeconds == 0 {
		cfg.Refresh.RealtimeIntervalSeconds = 1
	}
	if cfg.Refresh.AlertsIntervalSeconds == 0 {
		cfg.Refresh.AlertsIntervalSeconds = 3600
	}
	if cfg.Refresh.CleanupTimeOfDay == "" {
		cfg.Refresh.CleanupTimeOfDay = "03:30:00"
	}
	if cfg.Refresh.WindowDays == 0 {
		cfg.Refresh.WindowDays = 3
	}
	if cfg.Refresh.RetentionDays == 0 {
		cfg.Refresh.RetentionDays = 3
	}
}
