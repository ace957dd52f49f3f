// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zapponejosh/natal-api/internal/astro"
)

// Config holds all application configuration.
// Fields are populated from environment variables.
type Config struct {
	// Server settings
	Port        int      // HTTP port to listen on
	Env         string   // development, staging, production
	CORSOrigins []string // allowed browser origins

	// Database
	DatabasePath string // Path to SQLite file

	// Authentication
	APIKey string // API key for write endpoints

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Content
	ContentDir     string // directory holding the content spreadsheets
	ContentWatch   bool   // reload spreadsheets when they change
	AssetsDir      string // image root, served under /static/
	PlaceholderURL string // image used when a degree has none

	// Charts
	HouseSystem         astro.HouseSystem
	ResearchConcurrency int

	// Geocoding
	GeocoderURL          string
	GeocoderUserAgent    string
	GeocoderTimeout      time.Duration
	GeocoderRetryTimeout time.Duration
}

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Load reads configuration from environment variables.
// In development, it first loads from .env file if present.
func Load() (*Config, error) {
	// No-op in production where env vars are set directly
	_ = godotenv.Load()

	cfg := &Config{}

	// Server settings
	cfg.Port = getEnvInt("PORT", 8080)
	cfg.Env = getEnv("ENV", EnvDevelopment)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", []string{"*"})

	// Database
	cfg.DatabasePath = getEnv("DATABASE_PATH", "./data/souls.db")

	// Authentication
	cfg.APIKey = getEnv("API_KEY", "")

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "text")

	// Content
	cfg.ContentDir = getEnv("CONTENT_DIR", "./data/content")
	cfg.ContentWatch = getEnvBool("CONTENT_WATCH", false)
	cfg.AssetsDir = getEnv("ASSETS_DIR", "./static")
	cfg.PlaceholderURL = getEnv("PLACEHOLDER_IMAGE_URL", "https://via.placeholder.com/400x600?text=No+Image")

	// Charts
	cfg.HouseSystem = astro.HouseSystem(strings.ToLower(getEnv("HOUSE_SYSTEM", string(astro.HouseSystemPlacidus))))
	cfg.ResearchConcurrency = getEnvInt("RESEARCH_CONCURRENCY", 4)

	// Geocoding
	cfg.GeocoderURL = getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	cfg.GeocoderUserAgent = getEnv("GEOCODER_USER_AGENT", "inside_time_app")
	cfg.GeocoderTimeout = getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second)
	cfg.GeocoderRetryTimeout = getEnvDuration("GEOCODER_RETRY_TIMEOUT", 15*time.Second)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	switch c.Env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// Valid
	default:
		errs = append(errs, fmt.Errorf("ENV must be one of: development, staging, production; got %q", c.Env))
	}

	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}

	// API key is required in production
	if c.Env == EnvProduction && c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required in production"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error; got %q", c.LogLevel))
	}

	switch c.LogFormat {
	case "json", "text":
		// Valid
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be one of: json, text; got %q", c.LogFormat))
	}

	if c.ContentDir == "" {
		errs = append(errs, errors.New("CONTENT_DIR is required"))
	}

	if !c.HouseSystem.IsValid() {
		errs = append(errs, fmt.Errorf("HOUSE_SYSTEM must be one of: %s; got %q", houseSystemList(), c.HouseSystem))
	}

	if c.ResearchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("RESEARCH_CONCURRENCY must be at least 1, got %d", c.ResearchConcurrency))
	}

	if u, err := url.Parse(c.GeocoderURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("GEOCODER_URL must be an absolute URL, got %q", c.GeocoderURL))
	}

	// Nominatim rejects requests without an identifying agent
	if c.GeocoderUserAgent == "" {
		errs = append(errs, errors.New("GEOCODER_USER_AGENT is required"))
	}

	if c.GeocoderTimeout <= 0 || c.GeocoderRetryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("GEOCODER_TIMEOUT and GEOCODER_RETRY_TIMEOUT must be positive; got %s and %s",
			c.GeocoderTimeout, c.GeocoderRetryTimeout))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func houseSystemList() string {
	names := make([]string, 0, len(astro.ValidHouseSystems()))
	for _, hs := range astro.ValidHouseSystems() {
		names = append(names, string(hs))
	}
	return strings.Join(names, ", ")
}

// getEnv reads an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15s") or bare seconds ("15").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
