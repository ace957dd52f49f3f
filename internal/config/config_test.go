package config

import (
	"strings"
	"testing"
	"time"

	"github.com/zapponejosh/natal-api/internal/astro"
)

var configVars = []string{
	"PORT", "ENV", "CORS_ORIGINS", "DATABASE_PATH", "API_KEY",
	"LOG_LEVEL", "LOG_FORMAT",
	"CONTENT_DIR", "CONTENT_WATCH", "ASSETS_DIR", "PLACEHOLDER_IMAGE_URL",
	"HOUSE_SYSTEM", "RESEARCH_CONCURRENCY",
	"GEOCODER_URL", "GEOCODER_USER_AGENT", "GEOCODER_TIMEOUT", "GEOCODER_RETRY_TIMEOUT",
}

// clearEnv blanks every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configVars {
		t.Setenv(v, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Env != EnvDevelopment {
		t.Errorf("Env = %q, want %q", cfg.Env, EnvDevelopment)
	}
	if cfg.DatabasePath != "./data/souls.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("logging = %q/%q, want info/text", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.HouseSystem != astro.HouseSystemPlacidus {
		t.Errorf("HouseSystem = %q, want placidus", cfg.HouseSystem)
	}
	if cfg.ResearchConcurrency != 4 {
		t.Errorf("ResearchConcurrency = %d, want 4", cfg.ResearchConcurrency)
	}
	if cfg.GeocoderTimeout != 10*time.Second || cfg.GeocoderRetryTimeout != 15*time.Second {
		t.Errorf("geocoder timeouts = %s/%s, want 10s/15s", cfg.GeocoderTimeout, cfg.GeocoderRetryTimeout)
	}
	if cfg.GeocoderUserAgent != "inside_time_app" {
		t.Errorf("GeocoderUserAgent = %q", cfg.GeocoderUserAgent)
	}
	if cfg.ContentWatch {
		t.Error("ContentWatch = true, want false")
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", cfg.CORSOrigins)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "3000")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_PATH", "/data/test.db")
	t.Setenv("API_KEY", "secret-key-123")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("CONTENT_WATCH", "true")
	t.Setenv("HOUSE_SYSTEM", "Whole-Sign")
	t.Setenv("RESEARCH_CONCURRENCY", "8")
	t.Setenv("GEOCODER_TIMEOUT", "3s")
	t.Setenv("GEOCODER_RETRY_TIMEOUT", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.Env != EnvProduction {
		t.Errorf("Env = %q, want %q", cfg.Env, EnvProduction)
	}
	if cfg.APIKey != "secret-key-123" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "secret-key-123")
	}
	if got := strings.Join(cfg.CORSOrigins, " "); got != "https://a.example https://b.example" {
		t.Errorf("CORSOrigins = %q", got)
	}
	if !cfg.ContentWatch {
		t.Error("ContentWatch = false, want true")
	}
	if cfg.HouseSystem != astro.HouseSystemWholeSign {
		t.Errorf("HouseSystem = %q, want whole-sign", cfg.HouseSystem)
	}
	if cfg.ResearchConcurrency != 8 {
		t.Errorf("ResearchConcurrency = %d, want 8", cfg.ResearchConcurrency)
	}
	if cfg.GeocoderTimeout != 3*time.Second || cfg.GeocoderRetryTimeout != 20*time.Second {
		t.Errorf("geocoder timeouts = %s/%s, want 3s/20s", cfg.GeocoderTimeout, cfg.GeocoderRetryTimeout)
	}
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOUSE_SYSTEM", "koch")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error")
	}
	// Every problem is reported at once.
	for _, want := range []string{"HOUSE_SYSTEM", "LOG_FORMAT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func validConfig() Config {
	return Config{
		Port:                 8080,
		Env:                  EnvDevelopment,
		DatabasePath:         "./data/test.db",
		LogLevel:             "info",
		LogFormat:            "text",
		ContentDir:           "./data/content",
		HouseSystem:          astro.HouseSystemPlacidus,
		ResearchConcurrency:  4,
		GeocoderURL:          "https://nominatim.openstreetmap.org",
		GeocoderUserAgent:    "inside_time_app",
		GeocoderTimeout:      10 * time.Second,
		GeocoderRetryTimeout: 15 * time.Second,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid development config", func(c *Config) {}, false},
		{"valid production config", func(c *Config) { c.Env = EnvProduction; c.APIKey = "required-in-prod" }, false},
		{"production requires API key", func(c *Config) { c.Env = EnvProduction }, true},
		{"invalid port - too low", func(c *Config) { c.Port = 0 }, true},
		{"invalid port - too high", func(c *Config) { c.Port = 70000 }, true},
		{"invalid environment", func(c *Config) { c.Env = "invalid" }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"invalid log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }, true},
		{"empty content dir", func(c *Config) { c.ContentDir = "" }, true},
		{"unknown house system", func(c *Config) { c.HouseSystem = "koch" }, true},
		{"zero research concurrency", func(c *Config) { c.ResearchConcurrency = 0 }, true},
		{"relative geocoder URL", func(c *Config) { c.GeocoderURL = "nominatim" }, true},
		{"missing user agent", func(c *Config) { c.GeocoderUserAgent = "" }, true},
		{"zero geocoder timeout", func(c *Config) { c.GeocoderTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: EnvDevelopment}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}

	cfg.Env = EnvProduction
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true, want false")
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := &Config{Env: EnvProduction}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}

	cfg.Env = EnvDevelopment
	if cfg.IsProduction() {
		t.Error("IsProduction() = true, want false")
	}
}
