// Package config loads server configuration from an optional TOML file
// overlaid with environment variables. Environment values win, so a
// deployment can override any file setting without editing it.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration decodes "30m"-style strings from both TOML and the environment.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config holds every runtime setting of the identity server.
type Config struct {
	// HTTPAddr is the listen address of the HTTP server.
	HTTPAddr string `toml:"http_addr" env:"SILVERMINT_HTTP_ADDR"`
	// DatabasePath locates the SQLite database file.
	DatabasePath string `toml:"database_path" env:"SILVERMINT_DATABASE_PATH"`
	// TracingEndpoint is the OTLP/HTTP collector address. Empty disables
	// tracing.
	TracingEndpoint string `toml:"tracing_endpoint" env:"SILVERMINT_TRACING_ENDPOINT"`

	// SessionExpiry drops sessions idle longer than this. Zero disables
	// expiry.
	SessionExpiry Duration `toml:"session_expiry" env:"SILVERMINT_SESSION_EXPIRY"`

	// InitialAdminName and friends bootstrap a first admin into an empty
	// database. The password is environment-only so it never lands in a
	// config file.
	InitialAdminName     string `toml:"initial_admin_name" env:"SILVERMINT_INITIAL_ADMIN_NAME"`
	InitialAdminEmail    string `toml:"initial_admin_email" env:"SILVERMINT_INITIAL_ADMIN_EMAIL"`
	InitialAdminPassword string `toml:"-" env:"SILVERMINT_INITIAL_ADMIN_PASSWORD"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		HTTPAddr:          ":8975",
		DatabasePath:      "silvermint.db",
		SessionExpiry:     Duration{12 * time.Hour},
		InitialAdminName:  "admin",
		InitialAdminEmail: "admin@localhost",
	}
}

// Load builds the effective configuration: defaults, then the TOML file at
// path when non-empty, then the environment on top.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.SessionExpiry.Duration < 0 {
		return fmt.Errorf("session_expiry cannot be negative")
	}
	if c.InitialAdminName == "" {
		return fmt.Errorf("initial_admin_name is required")
	}
	if c.InitialAdminEmail == "" {
		return fmt.Errorf("initial_admin_email is required")
	}
	return nil
}
