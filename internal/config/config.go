// Package config loads crewbot settings from defaults, an optional YAML file
// and CREWBOT_* environment variables, in that order of precedence.
package config

import (
	"time"

	"crewbot/internal/common"
)

type Config struct {
	Log        LogConfig        `koanf:"log"`
	Discord    DiscordConfig    `koanf:"discord"`
	Regions    []RegionConfig   `koanf:"regions" validate:"required,min=1,unique=Name,dive"`
	Enrichment EnrichmentConfig `koanf:"enrichment"`
	Tracker    TrackerConfig    `koanf:"tracker"`
	Store      StoreConfig      `koanf:"store"`
	HTTP       HTTPConfig       `koanf:"http"`
	Proxy      ProxyConfig      `koanf:"proxy"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type DiscordConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Token        string `koanf:"token" validate:"required_if=Enabled true"`
	BoardChannel string `koanf:"board_channel"`
	AlertChannel string `koanf:"alert_channel"`
	Prefix       string `koanf:"prefix" validate:"required"`
}

// A region is one upstream roster endpoint
type RegionConfig struct {
	Name string `koanf:"name" validate:"required"`
	URL  string `koanf:"url" validate:"required,url"`
}

type EnrichmentConfig struct {
	URL     string        `koanf:"url" validate:"omitempty,url"`
	Refresh time.Duration `koanf:"refresh" validate:"gte=1m"`
	// Bracketed tags stripped from display names before matching
	Tags []string `koanf:"tags"`
}

type TrackerConfig struct {
	Interval        time.Duration `koanf:"interval" validate:"gte=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type StoreConfig struct {
	Path             string        `koanf:"path" validate:"required"`
	MaxBacklogEvents int           `koanf:"max_backlog_events" validate:"gt=0"`
	RecoveryGrace    time.Duration `koanf:"recovery_grace" validate:"gte=0"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address" validate:"required_if=Enabled true"`
}

type ProxyConfig struct {
	Timeout          time.Duration        `koanf:"timeout" validate:"gt=0"`
	APIKeyHeader     string               `koanf:"api_key_header"`
	APIKey           string               `koanf:"api_key"`
	Restrictions     []common.Restriction `koanf:"restrictions" validate:"dive"`
	RateLimitBackoff time.Duration        `koanf:"rate_limit_backoff" validate:"gt=0"`
	Breaker          BreakerConfig        `koanf:"breaker"`
}

// Circuit breaker settings shared by every upstream endpoint
type BreakerConfig struct {
	ConsecutiveFailures uint32        `koanf:"consecutive_failures" validate:"gt=0"`
	OpenTimeout         time.Duration `koanf:"open_timeout" validate:"gt=0"`
}

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Discord: DiscordConfig{
			Enabled: false,
			Prefix:  "crew",
		},
		Enrichment: EnrichmentConfig{
			Refresh: 10 * time.Minute,
			Tags:    []string{"crew", "trainee", "tr"},
		},
		Tracker: TrackerConfig{
			Interval:        60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Path:             "crewbot.db",
			MaxBacklogEvents: 10000,
			RecoveryGrace:    2 * time.Minute,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: ":9090",
		},
		Proxy: ProxyConfig{
			Timeout:          10 * time.Second,
			Restrictions:     []common.Restriction{{Requests: 60, Duration: time.Minute}},
			RateLimitBackoff: 30 * time.Second,
			Breaker: BreakerConfig{
				ConsecutiveFailures: 3,
				OpenTimeout:         2 * time.Minute,
			},
		},
	}
}
