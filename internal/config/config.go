// Package config provides configuration management for the portfolio
// analysis service.
//
// Configuration is loaded from environment variables (optionally via a
// .env file). There is no settings database in this service, unlike the
// teacher this is derived from, all runtime state lives in the external
// document store, not in a local database, so configuration is pure
// environment-variable loading with no secondary override layer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	RedisURL       string        // document store connection target
	HTTPPort       int           // HTTP/WebSocket listen port
	LogLevel       string        // debug, info, warn, error
	DevMode        bool          // development mode flag
	SessionTTL     time.Duration // key expiry, refreshed on every mutation
	MarketInterval time.Duration // market updater tick period
	IdleTimeout    time.Duration // session controller teardown threshold
	MetricDelayMin time.Duration // simulated metric kernel delay, lower bound
	MetricDelayMax time.Duration // simulated metric kernel delay, upper bound
	BasePrices     map[string]float64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		HTTPPort:       getEnvAsInt("HTTP_PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		SessionTTL:     getEnvAsSeconds("SESSION_TTL_SECONDS", 86400),
		MarketInterval: getEnvAsSeconds("MARKET_UPDATE_INTERVAL_SECONDS", 30),
		IdleTimeout:    getEnvAsSeconds("IDLE_TIMEOUT_SECONDS", 900),
		MetricDelayMin: getEnvAsMillis("METRIC_DELAY_MIN_MS", 2000),
		MetricDelayMax: getEnvAsMillis("METRIC_DELAY_MAX_MS", 5000),
		BasePrices:     defaultBasePrices(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants on the loaded configuration.
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must not be empty")
	}
	if c.MetricDelayMin > c.MetricDelayMax {
		return fmt.Errorf("METRIC_DELAY_MIN_MS (%s) must not exceed METRIC_DELAY_MAX_MS (%s)", c.MetricDelayMin, c.MetricDelayMax)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must be positive")
	}
	return nil
}

func defaultBasePrices() map[string]float64 {
	return map[string]float64{
		"AAPL":  190.0,
		"GOOGL": 140.0,
		"MSFT":  410.0,
		"AMZN":  180.0,
		"TSLA":  250.0,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

func getEnvAsMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMillis)) * time.Millisecond
}
