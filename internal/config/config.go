package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ConfigVersion is written by Save.
const ConfigVersion = "1"

// Config represents the flat certs configuration.
// Toggles are read once at startup and treated as read-only afterwards.
type Config struct {
	Version string `json:"version"`

	DatabaseDriver string `json:"database_driver"`       // sqlite3 or pgx
	DatabaseDSN    string `json:"database_dsn,omitempty"` // empty means ~/.certs/certs.db

	AutoGenerationEnabled     bool `json:"auto_generation_enabled"`
	IDVEnforced               bool `json:"idv_enforced"`
	HTMLCertsEnabled          bool `json:"html_certs_enabled"`
	HonorCertificatesDisabled bool `json:"honor_certificates_disabled"`

	FilterSteps        []string `json:"filter_steps,omitempty"`
	FilterFailSilently bool     `json:"filter_fail_silently"`

	Concurrency         int `json:"concurrency"`
	MaxRetries          int `json:"max_retries"`
	RetryBackoffSeconds int `json:"retry_backoff_seconds"`
	PollIntervalMillis  int `json:"poll_interval_ms"`

	CredentialsURL            string `json:"credentials_url,omitempty"`
	CredentialsToken          string `json:"credentials_token,omitempty"`
	CredentialsTimeoutSeconds int    `json:"credentials_timeout_seconds"`
	ProgramCacheSize          int    `json:"program_cache_size"`

	LogLevel  string `json:"log_level"`  // debug, info, warn, error
	LogFormat string `json:"log_format"` // text or json
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:                   ConfigVersion,
		DatabaseDriver:            "sqlite3",
		AutoGenerationEnabled:     true,
		IDVEnforced:               true,
		HTMLCertsEnabled:          true,
		Concurrency:               4,
		MaxRetries:                2,
		RetryBackoffSeconds:       30,
		PollIntervalMillis:        500,
		CredentialsTimeoutSeconds: 10,
		ProgramCacheSize:          1024,
		LogLevel:                  "info",
		LogFormat:                 "text",
	}
}

// RetryBackoff returns the fixed delay before a task retry.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

// PollInterval returns how long an idle worker waits before polling again.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// CredentialsTimeout returns the HTTP timeout for the credentials service.
func (c *Config) CredentialsTimeout() time.Duration {
	return time.Duration(c.CredentialsTimeoutSeconds) * time.Second
}

// Load resolves configuration for the given directory.
// Resolution order: defaults, then <dir>/.certs/config.json, then <dir>/.env,
// then CERTS_* environment variables. Missing files are not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, ".certs", "config.json")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	dotenv, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"CERTS_DB_DRIVER":         &cfg.DatabaseDriver,
		"CERTS_DB_DSN":            &cfg.DatabaseDSN,
		"CERTS_CREDENTIALS_URL":   &cfg.CredentialsURL,
		"CERTS_CREDENTIALS_TOKEN": &cfg.CredentialsToken,
		"CERTS_LOG_LEVEL":         &cfg.LogLevel,
		"CERTS_LOG_FORMAT":        &cfg.LogFormat,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"CERTS_AUTO_GENERATION":      &cfg.AutoGenerationEnabled,
		"CERTS_IDV_ENFORCED":         &cfg.IDVEnforced,
		"CERTS_HTML_CERTS":           &cfg.HTMLCertsEnabled,
		"CERTS_HONOR_DISABLED":       &cfg.HonorCertificatesDisabled,
		"CERTS_FILTER_FAIL_SILENTLY": &cfg.FilterFailSilently,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"CERTS_CONCURRENCY":           &cfg.Concurrency,
		"CERTS_MAX_RETRIES":           &cfg.MaxRetries,
		"CERTS_RETRY_BACKOFF_SECONDS": &cfg.RetryBackoffSeconds,
		"CERTS_POLL_INTERVAL_MS":      &cfg.PollIntervalMillis,
		"CERTS_CREDENTIALS_TIMEOUT":   &cfg.CredentialsTimeoutSeconds,
		"CERTS_PROGRAM_CACHE_SIZE":    &cfg.ProgramCacheSize,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup("CERTS_FILTER_STEPS"); ok {
		cfg.FilterSteps = nil
		for _, step := range strings.Split(v, ",") {
			if step = strings.TrimSpace(step); step != "" {
				cfg.FilterSteps = append(cfg.FilterSteps, step)
			}
		}
	}

	return nil
}

// Save writes config.json to <dir>/.certs.
func Save(dir string, cfg *Config) error {
	certsDir := filepath.Join(dir, ".certs")
	if err := os.MkdirAll(certsDir, 0755); err != nil {
		return fmt.Errorf("failed to create .certs dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(certsDir, "config.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
