// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for threadchat.
//
// Configuration file locations (in order of precedence):
//   - environment variables (THREADCHAT_*), including a .env file
//   - ~/.threadchat/config.toml
//   - ~/.threadchat/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/jeranaias/threadchat/internal/util"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "THREADCHAT_"

// HomeEnv overrides the configuration directory.
const HomeEnv = EnvPrefix + "HOME"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// History sources.
const (
	HistoryRemote = "remote"
	HistoryLocal  = "local"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete threadchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Server  ServerConfig  `toml:"server" json:"server" envPrefix:"SERVER_"`
	Session SessionConfig `toml:"session" json:"session" envPrefix:"SESSION_"`
	Storage StorageConfig `toml:"storage" json:"storage" envPrefix:"STORAGE_"`
	History HistoryConfig `toml:"history" json:"history" envPrefix:"HISTORY_"`
	UI      UIConfig      `toml:"ui" json:"ui" envPrefix:"UI_"`
	Log     LogConfig     `toml:"log" json:"log" envPrefix:"LOG_"`
}

// ServerConfig describes how to reach the chat backend.
type ServerConfig struct {
	// BaseURL is the API root, including the /api/v1 suffix.
	BaseURL string `toml:"base_url" json:"base_url" env:"BASE_URL"`
	// TimeoutSecs bounds each request. 0 keeps the HTTP client default.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs" env:"TIMEOUT_SECS"`
	// RateLimit caps outgoing requests per second. 0 disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit" env:"RATE_LIMIT"`
	// RateBurst is the limiter bucket size.
	RateBurst int    `toml:"rate_burst" json:"rate_burst" env:"RATE_BURST"`
	UserAgent string `toml:"user_agent" json:"user_agent" env:"USER_AGENT"`
}

// SessionConfig controls the persisted auth token.
type SessionConfig struct {
	// TokenKey is the storage key the bearer token lives under.
	TokenKey string `toml:"token_key" json:"token_key" env:"TOKEN_KEY"`
	// Watch re-reads the token when another threadchat process logs in or out.
	Watch bool `toml:"watch" json:"watch" env:"WATCH"`
}

// StorageConfig selects the local key/value store.
type StorageConfig struct {
	// Backend is "sqlite" or "file".
	Backend string `toml:"backend" json:"backend" env:"BACKEND"`
	// Path of the store. Empty uses state.db or state.json in ConfigDir.
	Path string `toml:"path" json:"path" env:"PATH"`
	// Encrypt seals the auth token and cached messages at rest.
	Encrypt bool `toml:"encrypt" json:"encrypt" env:"ENCRYPT"`
	// Passphrase for sealing. Never written to disk; when empty a random
	// key file next to the store is used instead.
	Passphrase string `toml:"-" json:"-" env:"PASSPHRASE"`
}

// HistoryConfig selects where message history comes from.
type HistoryConfig struct {
	// Source is "remote" (chat-history endpoint) or "local" (on-disk cache).
	Source string `toml:"source" json:"source" env:"SOURCE"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	Theme        string `toml:"theme" json:"theme" env:"THEME"`
	SidebarWidth int    `toml:"sidebar_width" json:"sidebar_width" env:"SIDEBAR_WIDTH"`
	// Markdown renders assistant replies through glamour.
	Markdown bool `toml:"markdown" json:"markdown" env:"MARKDOWN"`
	// Highlight colors fenced and <pre> code blocks.
	Highlight bool `toml:"highlight" json:"highlight" env:"HIGHLIGHT"`
}

// LogConfig controls the file logger.
type LogConfig struct {
	Level string `toml:"level" json:"level" env:"LEVEL"`
	// Path of the log file. Empty uses threadchat.log in ConfigDir.
	Path string `toml:"path" json:"path" env:"PATH"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			BaseURL:   "http://localhost:8000/api/v1",
			RateBurst: 1,
			UserAgent: "threadchat",
		},
		Session: SessionConfig{
			TokenKey: "jwtToken",
			Watch:    true,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			Encrypt: true,
		},
		History: HistoryConfig{
			Source: HistoryRemote,
		},
		UI: UIConfig{
			Theme:        "dark",
			SidebarWidth: 30,
			Markdown:     true,
			Highlight:    true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the threadchat configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".threadchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// StoragePath returns the resolved key/value store location.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if c.Storage.Backend == BackendFile {
		return filepath.Join(dir, "state.json"), nil
	}
	return filepath.Join(dir, "state.db"), nil
}

// LogPath returns the resolved log file location.
func (c *Config) LogPath() (string, error) {
	if c.Log.Path != "" {
		return c.Log.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "threadchat.log"), nil
}

// ensureSecurePermissions narrows config files to owner read/write.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	tomlPath, tomlErr := ConfigPathTOML()
	jsonPath, jsonErr := ConfigPathJSON()

	switch {
	case tomlErr == nil && util.FileExists(tomlPath):
		if err := LoadTOML(cfg, tomlPath); err != nil {
			loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			cfg = Default()
		}
	case jsonErr == nil && util.FileExists(jsonPath):
		if err := LoadJSON(cfg, jsonPath); err != nil {
			loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			cfg = Default()
		}
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	// Defaults are still usable when the file was unreadable.
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func finish(cfg *Config) error {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Server
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	if cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = defaults.Server.RateBurst
	}
	if cfg.Server.UserAgent == "" {
		cfg.Server.UserAgent = defaults.Server.UserAgent
	}

	// Session
	if cfg.Session.TokenKey == "" {
		cfg.Session.TokenKey = defaults.Session.TokenKey
	}

	// Storage
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)

	// History
	if cfg.History.Source == "" {
		cfg.History.Source = defaults.History.Source
	}
	cfg.History.Source = strings.ToLower(cfg.History.Source)

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.SidebarWidth == 0 {
		cfg.UI.SidebarWidth = defaults.UI.SidebarWidth
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# threadchat configuration file\n")
	b.WriteString("# Generated by threadchat - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether a validation error was recorded for field.
func (e ValidateErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	u, err := url.Parse(c.Server.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, ValidationError{"server.base_url", fmt.Sprintf("invalid URL: %v", err)})
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, ValidationError{"server.base_url", fmt.Sprintf("unsupported scheme '%s', must be http or https", u.Scheme)})
	case u.Host == "":
		errs = append(errs, ValidationError{"server.base_url", "missing host"})
	}
	if c.Server.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{"server.timeout_secs", "cannot be negative"})
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{"server.rate_limit", "cannot be negative"})
	}

	switch c.Storage.Backend {
	case BackendSQLite, BackendFile:
	default:
		errs = append(errs, ValidationError{"storage.backend",
			fmt.Sprintf("invalid backend '%s', must be one of: sqlite, file", c.Storage.Backend)})
	}

	switch c.History.Source {
	case HistoryRemote, HistoryLocal:
	default:
		errs = append(errs, ValidationError{"history.source",
			fmt.Sprintf("invalid source '%s', must be one of: remote, local", c.History.Source)})
	}

	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		errs = append(errs, ValidationError{"ui.theme",
			fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme)})
	}
	if c.UI.SidebarWidth < 16 || c.UI.SidebarWidth > 80 {
		errs = append(errs, ValidationError{"ui.sidebar_width", "must be between 16 and 80"})
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"log.level",
			fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

var dotenvOnce sync.Once

// ApplyEnvOverrides applies THREADCHAT_* environment variables to the config.
// A .env file in the working directory is loaded first; variables already
// present in the environment win over it.
//
// Examples:
//   - THREADCHAT_SERVER_BASE_URL
//   - THREADCHAT_STORAGE_BACKEND, THREADCHAT_STORAGE_PASSPHRASE
//   - THREADCHAT_HISTORY_SOURCE
//   - THREADCHAT_LOG_LEVEL
func (c *Config) ApplyEnvOverrides() error {
	dotenvOnce.Do(func() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: could not read .env: %v\n", err)
		}
	})
	return env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix})
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the configuration as TOML with secrets omitted.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return b.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if cfg == nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return err
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
