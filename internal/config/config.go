// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"car-edition/core/types"
	"car-edition/internal/errors"
	"car-edition/internal/logging"
)

// Environment variables that override file settings
const (
	EnvEnvironment  = "CAR_EDITION_ENV"
	EnvAPIKey       = "VEHICLE_API_KEY"
	EnvDatabaseURL  = "CAR_EDITION_DATABASE_URL"
	EnvFormEndpoint = "CAR_EDITION_FORM_ENDPOINT"
	EnvLookupMode   = "CAR_EDITION_LOOKUP_MODE"
)

// Lookup modes. An empty mode resolves to live in production and mock
// elsewhere.
const (
	LookupMock = "mock"
	LookupLive = "live"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Environment is development or production
	Environment string `json:"environment"`

	// Server contains HTTP server configuration
	Server ServerConfig `json:"server"`

	// Lookup contains vehicle registry configuration
	Lookup LookupConfig `json:"lookup"`

	// Pricing contains pricing configuration
	Pricing PricingConfig `json:"pricing"`

	// Storage contains booking and session storage configuration
	Storage StorageConfig `json:"storage"`

	// Submission contains booking submission configuration
	Submission SubmissionConfig `json:"submission"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr                string   `json:"addr"`
	ReadTimeoutSeconds  int      `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `json:"write_timeout_seconds"`
	MaxBodyBytes        int64    `json:"max_body_bytes"`
	CORSOrigins         []string `json:"cors_origins"`

	// RateLimit is requests per second per client; zero disables limiting
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// TrustProxy is set when the server sits behind a proxy that appends
	// the client address to X-Forwarded-For
	TrustProxy bool `json:"trust_proxy"`
}

// LookupConfig contains vehicle registry settings
type LookupConfig struct {
	// Mode is mock or live
	Mode           string  `json:"mode"`
	Endpoint       string  `json:"endpoint"`
	APIKey         string  `json:"api_key,omitempty"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	RPS            float64 `json:"rps"`
}

// PricingConfig contains pricing-related settings
type PricingConfig struct {
	// PriceBook is an HCL price book path; empty uses the embedded default
	PriceBook string `json:"price_book"`

	// Currency overrides the price book currency when set
	Currency types.Currency `json:"currency,omitempty"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Backend is memory, file or postgres
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
	DSN     string `json:"dsn,omitempty"`

	// SessionTTLMinutes is how long idle estimator sessions live
	SessionTTLMinutes int `json:"session_ttl_minutes"`
}

// SubmissionConfig contains booking submission settings
type SubmissionConfig struct {
	// FormEndpoint receives the form post; empty skips it
	FormEndpoint string `json:"form_endpoint,omitempty"`

	// StoreBookings records each submission in the booking store
	StoreBookings  bool `json:"store_bookings"`
	TimeoutSeconds int  `json:"timeout_seconds"`
}

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Version:     "1.0",
		Environment: "development",
		Server: ServerConfig{
			Addr:                ":8080",
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 30,
			MaxBodyBytes:        1 << 20,
			CORSOrigins:         []string{"*"},
			RateLimit:           10,
			RateBurst:           20,
		},
		Lookup: LookupConfig{
			Endpoint:       "https://driver-vehicle-licensing.api.gov.uk/vehicle-enquiry/v1/vehicles",
			TimeoutSeconds: 10,
			RPS:            5,
		},
		Pricing: PricingConfig{},
		Storage: StorageConfig{
			Backend:           "memory",
			Path:              filepath.Join(homeDir, ".car-edition", "bookings"),
			SessionTTLMinutes: 60,
		},
		Submission: SubmissionConfig{
			StoreBookings:  true,
			TimeoutSeconds: 15,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Config("failed to read config", err).WithContext("path", path)
		default:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, errors.Config("invalid config file", err).WithContext("path", path)
			}
		}
	}

	config.ApplyEnv(os.LookupEnv)
	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides settings from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvEnvironment); ok && v != "" {
		c.Environment = v
		if strings.EqualFold(v, "production") {
			c.Logging.Format = "json"
		}
	}
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.Lookup.APIKey = v
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		c.Storage.DSN = v
	}
	if v, ok := lookup(EnvFormEndpoint); ok && v != "" {
		c.Submission.FormEndpoint = v
	}
	if v, ok := lookup(EnvLookupMode); ok && v != "" {
		c.Lookup.Mode = v
	}
}

// Normalize lowercases enumerated settings so file values like "Postgres"
// match what the rest of the application expects
func (c *Config) Normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.Lookup.Mode = strings.ToLower(strings.TrimSpace(c.Lookup.Mode))
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
}

// ResolvedLookup returns the lookup settings with an unset mode filled in
func (c *Config) ResolvedLookup() LookupConfig {
	l := c.Lookup
	if l.Mode == "" {
		l.Mode = LookupMock
		if c.Production() {
			l.Mode = LookupLive
		}
	}
	return l
}

// Validate checks the settings that would otherwise fail at first use
func (c *Config) Validate() error {
	lookup := c.ResolvedLookup()
	switch lookup.Mode {
	case LookupMock:
	case LookupLive:
		if lookup.APIKey == "" {
			return errors.Config("live lookup requires an API key ("+EnvAPIKey+")", nil)
		}
	default:
		return errors.Newf(errors.TypeConfig, "unknown lookup mode %q", lookup.Mode)
	}

	switch c.Storage.Backend {
	case "memory", "file", "":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.Config("postgres storage requires a DSN ("+EnvDatabaseURL+")", nil)
		}
	default:
		return errors.Newf(errors.TypeConfig, "unknown storage backend %q", c.Storage.Backend)
	}

	if c.Pricing.Currency != "" && !c.Pricing.Currency.Valid() {
		return errors.Newf(errors.TypeConfig, "unsupported currency %q", c.Pricing.Currency)
	}
	return nil
}

// Production reports whether the environment is production
func (c *Config) Production() bool {
	return c.Environment == "production"
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// ReadTimeout returns the server read timeout
func (s ServerConfig) ReadTimeout() time.Duration { return seconds(s.ReadTimeoutSeconds) }

// WriteTimeout returns the server write timeout
func (s ServerConfig) WriteTimeout() time.Duration { return seconds(s.WriteTimeoutSeconds) }

// Timeout returns the registry request timeout
func (l LookupConfig) Timeout() time.Duration { return seconds(l.TimeoutSeconds) }

// Timeout returns the form submission timeout
func (s SubmissionConfig) Timeout() time.Duration { return seconds(s.TimeoutSeconds) }

// SessionTTL returns the estimator session lifetime
func (s StorageConfig) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLMinutes) * time.Minute
}

// Save saves configuration to a file. Secrets are not written.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	out := *c
	out.Lookup.APIKey = ""
	out.Storage.DSN = ""

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
