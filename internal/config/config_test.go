package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Tokens.SignTTL != 7*24*time.Hour {
		t.Errorf("sign ttl = %v", cfg.Tokens.SignTTL)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
store:
  driver: postgres
  dsn_env: TEST_DSN
tokens:
  sign_ttl: 48h
observability:
  log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSNEnv != "TEST_DSN" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Tokens.SignTTL != 48*time.Hour {
		t.Errorf("sign ttl = %v, want 48h", cfg.Tokens.SignTTL)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("shutdown timeout = %v, want default", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("REDLINE_SERVER_PORT", "7070")
	t.Setenv("REDLINE_OBSERVABILITY_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Observability.LogLevel != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Observability.LogLevel)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"postgres without dsn env", func(c *Config) { c.Store.Driver = "postgres"; c.Store.DSNEnv = "" }},
		{"negative ttl", func(c *Config) { c.Tokens.SignTTL = -time.Hour }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestTTLForScope(t *testing.T) {
	tok := TokensConfig{ViewTTL: time.Hour, SignTTL: 2 * time.Hour}
	if tok.TTLForScope("VIEW") != time.Hour {
		t.Error("VIEW ttl mismatch")
	}
	if tok.TTLForScope("SIGN") != 2*time.Hour {
		t.Error("SIGN ttl mismatch")
	}
	if tok.TTLForScope("BOGUS") != 0 {
		t.Error("unknown scope must map to zero")
	}
}

func TestSessionSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.SecretEnv = "REDLINE_TEST_SECRET"

	if _, err := cfg.SessionSecret(); err == nil {
		t.Error("SessionSecret() = nil error with unset env, want error")
	}
	t.Setenv("REDLINE_TEST_SECRET", "hunter2")
	secret, err := cfg.SessionSecret()
	if err != nil {
		t.Fatalf("SessionSecret() error = %v", err)
	}
	if string(secret) != "hunter2" {
		t.Errorf("secret = %q", secret)
	}
}
