// Package config loads and manages nanom configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (GEMINI_API_KEY, SUPABASE_URL, NANOM_*, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/nanom/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SupabaseConfig holds the sync backend coordinates. Both fields empty
// means sync is disabled and the app runs purely local.
type SupabaseConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
}

// AccountConfig holds the remembered sign-in. The access token is a
// long-lived user token issued by the sync backend.
type AccountConfig struct {
	UserID      string `yaml:"user_id"`
	Email       string `yaml:"email"`
	AccessToken string `yaml:"access_token"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level: "debug" | "info" | "warn" | "error"
	Level string `yaml:"level"`

	// File path for log output. Empty = stderr.
	File string `yaml:"file"`
}

// TelemetryConfig holds metrics export settings.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// File receives the periodic metric export. Empty = default path
	// under the data directory.
	File string `yaml:"file"`
}

// Config is the complete configuration structure for nanom.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the Gemini endpoint. Empty = production.
	BaseURL string `yaml:"base_url"`

	// SystemInstruction replaces the built-in assistant persona.
	SystemInstruction string `yaml:"system_instruction"`

	// DataDir holds the local database. Empty = ~/.local/share/nanom.
	DataDir string `yaml:"data_dir"`

	// Supabase holds sync backend settings.
	Supabase SupabaseConfig `yaml:"supabase"`

	// Account is the remembered sign-in, written by `nanom login`.
	Account AccountConfig `yaml:"account"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log"`

	// Telemetry holds metrics export settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath returns ~/.config/nanom/config.yaml, or empty when the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "nanom", "config.yaml")
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// DataDirOrDefault resolves the data directory.
func (c *Config) DataDirOrDefault() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "nanom"), nil
}

// SaveAPIKeyToFile persists the API key into ~/.config/nanom/config.yaml,
// preserving all other user settings.
func SaveAPIKeyToFile(apiKey string) error {
	return updateConfigFile(func(raw map[string]any) {
		raw["api_key"] = apiKey
	})
}

// SaveSupabaseToFile persists the sync backend coordinates.
func SaveSupabaseToFile(url, anonKey string) error {
	return updateConfigFile(func(raw map[string]any) {
		raw["supabase"] = map[string]any{
			"url":      url,
			"anon_key": anonKey,
		}
	})
}

// SaveAccountToFile persists the signed-in account, or clears it when the
// account is zero.
func SaveAccountToFile(acct AccountConfig) error {
	return updateConfigFile(func(raw map[string]any) {
		if acct == (AccountConfig{}) {
			delete(raw, "account")
			return
		}
		raw["account"] = map[string]any{
			"user_id":      acct.UserID,
			"email":        acct.Email,
			"access_token": acct.AccessToken,
		}
	})
}

// updateConfigFile applies a mutation to the on-disk config, read into a
// generic map so unknown fields survive the rewrite.
func updateConfigFile(mutate func(map[string]any)) error {
	cfgPath := DefaultPath()
	if cfgPath == "" {
		return fmt.Errorf("cannot determine home directory")
	}

	raw := make(map[string]any)
	if data, err := os.ReadFile(cfgPath); err == nil {
		_ = yaml.Unmarshal(data, &raw) // ignore errors; start fresh if corrupt
	}

	mutate(raw)

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("NANOM_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("NANOM_SYSTEM_INSTRUCTION"); v != "" {
		cfg.SystemInstruction = v
	}
	if v := os.Getenv("NANOM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Supabase.URL = v
	}
	if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		cfg.Supabase.AnonKey = v
	}
	if v := os.Getenv("NANOM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
