// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Store         StoreConfig         `yaml:"store"`
	Tokens        TokensConfig        `yaml:"tokens"`
	Notify        NotifyConfig        `yaml:"notify"`
	Render        RenderConfig        `yaml:"render"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PublicBaseURL   string        `yaml:"public_base_url"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes owner session settings. Sessions are HMAC-signed
// JWTs issued by this service; SecretEnv names the environment variable
// holding the signing secret so the secret itself never lives in the file.
type IdentityConfig struct {
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	SecretEnv  string        `yaml:"secret_env"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// StoreConfig describes persistence settings.
type StoreConfig struct {
	Driver          string        `yaml:"driver"` // memory | postgres
	DSNEnv          string        `yaml:"dsn_env"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// TokensConfig describes access token lifetimes per scope. Zero means the
// token does not expire.
type TokensConfig struct {
	ViewTTL   time.Duration `yaml:"view_ttl"`
	EditTTL   time.Duration `yaml:"edit_ttl"`
	ReviewTTL time.Duration `yaml:"review_ttl"`
	SignTTL   time.Duration `yaml:"sign_ttl"`
}

// TTLForScope returns the configured lifetime for a token scope.
func (t TokensConfig) TTLForScope(scope string) time.Duration {
	switch scope {
	case "VIEW":
		return t.ViewTTL
	case "EDIT":
		return t.EditTTL
	case "REVIEW":
		return t.ReviewTTL
	case "SIGN":
		return t.SignTTL
	}
	return 0
}

// NotifyConfig describes outbound notification settings. An empty WebhookURL
// selects the logging notifier.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RenderConfig describes document rendering settings.
type RenderConfig struct {
	VerificationBaseURL string `yaml:"verification_base_url"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			PublicBaseURL:   "http://localhost:8080",
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			Issuer:     "redline",
			Audience:   "redline",
			SecretEnv:  "REDLINE_SESSION_SECRET",
			SessionTTL: 12 * time.Hour,
		},
		Store: StoreConfig{
			Driver:          "memory",
			DSNEnv:          "REDLINE_DATABASE_URL",
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Tokens: TokensConfig{
			ViewTTL:   30 * 24 * time.Hour,
			EditTTL:   14 * 24 * time.Hour,
			ReviewTTL: 14 * 24 * time.Hour,
			SignTTL:   7 * 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Render: RenderConfig{
			VerificationBaseURL: "http://localhost:8080",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields. An empty path skips the file and uses
// defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Identity.SecretEnv == "" {
		errs = append(errs, "identity.secret_env is required")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSNEnv == "" {
			errs = append(errs, "store.dsn_env is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not memory or postgres", c.Store.Driver))
	}
	if c.Tokens.SignTTL < 0 || c.Tokens.ReviewTTL < 0 || c.Tokens.EditTTL < 0 || c.Tokens.ViewTTL < 0 {
		errs = append(errs, "token ttls must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// SessionSecret resolves the owner session signing secret from the
// environment.
func (c *Config) SessionSecret() ([]byte, error) {
	secret := os.Getenv(c.Identity.SecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("config: %s is not set", c.Identity.SecretEnv)
	}
	return []byte(secret), nil
}

// applyEnvOverrides reads REDLINE_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDLINE_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REDLINE_SERVER_PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := os.Getenv("REDLINE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("REDLINE_NOTIFY_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("REDLINE_RENDER_VERIFICATION_BASE_URL"); v != "" {
		cfg.Render.VerificationBaseURL = v
	}
	if v := os.Getenv("REDLINE_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("REDLINE_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
}
