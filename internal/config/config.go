// Package config provides dynamic configuration management for RaspTerm.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for RaspTerm.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────
	ServerHost  string `mapstructure:"server_host"`
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"` // "development" or "production"
	// ClientURL is the dev-server origin allowed by CORS outside production.
	ClientURL string `mapstructure:"client_url"`
	DBPath    string `mapstructure:"db_path"`

	// ── Security ──────────────────────────────────────────────────────────────
	// AccessPassword is hashed with bcrypt at boot; it can be rotated at runtime
	// via /api/auth/change-password (in-memory only).
	AccessPassword string `mapstructure:"access_password"`
	// JWTSecret: HS256 signing key for bearer tokens (REST and websocket attach).
	JWTSecret        string `mapstructure:"jwt_secret"`
	JWTExpirationSec int    `mapstructure:"jwt_expiration_seconds"`
	LoginRateWindow  int    `mapstructure:"login_rate_window_ms"`
	LoginRateMax     int    `mapstructure:"login_rate_max"`

	// ── Telemetry ─────────────────────────────────────────────────────────────
	StatsIntervalMs        int `mapstructure:"stats_interval_ms"`
	StatsPersistIntervalMs int `mapstructure:"stats_persist_interval_ms"`
	StatsRetentionDays     int `mapstructure:"stats_retention_days"`

	// ── Terminal ─────────────────────────────────────────────────────────────
	TerminalShell      string `mapstructure:"terminal_shell"`
	TerminalStaleAfter int    `mapstructure:"terminal_stale_after_minutes"`
	TerminalSweepEvery int    `mapstructure:"terminal_sweep_minutes"`

	// ── Docker ───────────────────────────────────────────────────────────────
	DockerHost string `mapstructure:"docker_host"` // empty = DOCKER_HOST / default socket
}

// IsProduction reports whether the daemon runs with production hardening
// (no CORS, secure cookies).
func (c *Config) IsProduction() bool { return c.Environment == "production" }

// StatsInterval is the live-push period.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMs) * time.Millisecond
}

// PersistInterval is the history persistence period.
func (c *Config) PersistInterval() time.Duration {
	return time.Duration(c.StatsPersistIntervalMs) * time.Millisecond
}

// JWTExpiration is the lifetime of issued tokens.
func (c *Config) JWTExpiration() time.Duration {
	return time.Duration(c.JWTExpirationSec) * time.Second
}

// LoginWindow is the login rate-limit window.
func (c *Config) LoginWindow() time.Duration {
	return time.Duration(c.LoginRateWindow) * time.Millisecond
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret must not be empty"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.StatsIntervalMs <= 0 || c.StatsPersistIntervalMs <= 0 {
		errs = append(errs, errors.New("stats intervals must be positive"))
	}
	if c.StatsRetentionDays < 1 {
		errs = append(errs, errors.New("stats_retention_days must be >= 1"))
	}
	if c.TerminalStaleAfter <= 0 || c.TerminalSweepEvery <= 0 {
		errs = append(errs, errors.New("terminal sweep settings must be positive"))
	}
	if c.LoginRateMax <= 0 || c.LoginRateWindow <= 0 {
		errs = append(errs, errors.New("login rate limit settings must be positive"))
	}
	return errors.Join(errs...)
}

// Load reads config from file (./config.yaml or ~/.raspterm/config.yaml)
// and falls back to smart defaults. Environment variables with prefix RASPTERM_
// override file values.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.raspterm")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("port", 3001)
	v.SetDefault("environment", "development")
	v.SetDefault("client_url", "http://localhost:5173")
	v.SetDefault("db_path", "data/stats.db")

	// Security defaults. MUST be overridden in production via config.yaml or env vars.
	v.SetDefault("access_password", "changeme")
	v.SetDefault("jwt_secret", "dev-secret-change-in-production")
	v.SetDefault("jwt_expiration_seconds", 86400)
	v.SetDefault("login_rate_window_ms", 15*60*1000)
	v.SetDefault("login_rate_max", 5)

	v.SetDefault("stats_interval_ms", 5000)
	v.SetDefault("stats_persist_interval_ms", 60000)
	v.SetDefault("stats_retention_days", 30)

	v.SetDefault("terminal_shell", "/bin/bash")
	v.SetDefault("terminal_stale_after_minutes", 60)
	v.SetDefault("terminal_sweep_minutes", 30)

	v.SetDefault("docker_host", "")
}

func decode(v *viper.Viper) (*Config, error) {
	// --- Environment Variables ---
	v.SetEnvPrefix("RASPTERM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
