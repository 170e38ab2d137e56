// Package config loads service configuration from the environment, with an
// optional TOML file overlay for local development.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all service settings.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Redis    RedisConfig    `toml:"redis"`
	Feed     FeedConfig     `toml:"feed"`
	Fetch    FetchConfig    `toml:"fetch"`
	Sgp      SgpConfig      `toml:"sgp"`
	Stream   StreamConfig   `toml:"stream"`
	Postgres PostgresConfig `toml:"postgres"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type RedisConfig struct {
	URL      string `toml:"url"`
	Password string `toml:"password"`
}

// FeedConfig points at the upstream change-signal websocket.
type FeedConfig struct {
	URL              string        `toml:"url"`
	ReconnectBaseSec int           `toml:"reconnect_base_sec"`
	ReconnectBase    time.Duration `toml:"-"`
}

// FetchConfig points at the opportunity refresh endpoint.
type FetchConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// SgpConfig configures upstream parlay pricing.
type SgpConfig struct {
	BaseURL           string        `toml:"base_url"`
	APIKey            string        `toml:"api_key"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	CacheTTLSec       int           `toml:"cache_ttl_sec"`
	StreamTimeoutSec  int           `toml:"stream_timeout_sec"`
	CacheTTL          time.Duration `toml:"-"`
	StreamTimeout     time.Duration `toml:"-"`
}

// StreamConfig holds the session timing windows, in milliseconds.
type StreamConfig struct {
	DebounceMS        int `toml:"debounce_ms"`
	FlashWindowMS     int `toml:"flash_window_ms"`
	HighlightWindowMS int `toml:"highlight_window_ms"`
}

// PostgresConfig is optional: an empty DSN disables history writing.
type PostgresConfig struct {
	DSN string `toml:"dsn"`
}

// Load reads configuration from the environment. If UNJUICED_CONFIG names a
// TOML file, its values are applied first and the environment overrides them.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("UNJUICED_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", defaultString(cfg.Server.Port, "8080"))
	cfg.Redis.URL = getEnv("REDIS_URL", defaultString(cfg.Redis.URL, "localhost:6379"))
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Feed.URL = getEnv("FEED_URL", cfg.Feed.URL)
	cfg.Feed.ReconnectBaseSec = getEnvInt("FEED_RECONNECT_BASE_SEC", defaultInt(cfg.Feed.ReconnectBaseSec, 1))
	cfg.Feed.ReconnectBase = time.Duration(cfg.Feed.ReconnectBaseSec) * time.Second

	cfg.Fetch.BaseURL = getEnv("FETCH_BASE_URL", cfg.Fetch.BaseURL)
	cfg.Fetch.APIKey = getEnv("FETCH_API_KEY", cfg.Fetch.APIKey)
	if cfg.Fetch.BaseURL == "" {
		return nil, fmt.Errorf("FETCH_BASE_URL is required")
	}

	cfg.Sgp.BaseURL = getEnv("SGP_BASE_URL", cfg.Sgp.BaseURL)
	cfg.Sgp.APIKey = getEnv("SGP_API_KEY", cfg.Sgp.APIKey)
	cfg.Sgp.RequestsPerSecond = getEnvFloat("SGP_REQUESTS_PER_SECOND", defaultFloat(cfg.Sgp.RequestsPerSecond, 5))
	cfg.Sgp.CacheTTLSec = getEnvInt("SGP_CACHE_TTL_SEC", defaultInt(cfg.Sgp.CacheTTLSec, 90))
	cfg.Sgp.StreamTimeoutSec = getEnvInt("SGP_STREAM_TIMEOUT_SEC", defaultInt(cfg.Sgp.StreamTimeoutSec, 15))
	cfg.Sgp.CacheTTL = time.Duration(cfg.Sgp.CacheTTLSec) * time.Second
	cfg.Sgp.StreamTimeout = time.Duration(cfg.Sgp.StreamTimeoutSec) * time.Second

	cfg.Stream.DebounceMS = getEnvInt("STREAM_DEBOUNCE_MS", defaultInt(cfg.Stream.DebounceMS, 1000))
	cfg.Stream.FlashWindowMS = getEnvInt("STREAM_FLASH_WINDOW_MS", defaultInt(cfg.Stream.FlashWindowMS, 5000))
	cfg.Stream.HighlightWindowMS = getEnvInt("STREAM_HIGHLIGHT_WINDOW_MS", defaultInt(cfg.Stream.HighlightWindowMS, 10000))

	cfg.Postgres.DSN = getEnv("POSTGRES_DSN", cfg.Postgres.DSN)

	return cfg, nil
}

func defaultString(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func defaultInt(current, fallback int) int {
	if current != 0 {
		return current
	}
	return fallback
}

func defaultFloat(current, fallback float64) float64 {
	if current != 0 {
		return current
	}
	return fallback
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("⚠️ %s=%q is not an integer, using default %d", key, value, defaultValue)
			return defaultValue
		}
		return intValue
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.Printf("⚠️ %s=%q is not a number, using default %g", key, value, defaultValue)
			return defaultValue
		}
		return floatValue
	}
	return defaultValue
}
