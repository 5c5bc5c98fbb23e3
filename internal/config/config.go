// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/aidev/internal/storage"
	"github.com/jeranaias/aidev/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the process configuration. Runtime provider settings that users
// edit at run time live in the key-value store instead; see Settings.
type Config struct {
	Server   ServerConfig   `toml:"server" json:"server"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Logging  LoggingConfig  `toml:"logging" json:"logging"`
	Provider ProviderConfig `toml:"provider" json:"provider"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8787".
	Addr string `toml:"addr" json:"addr"`
	// RateLimitRPS is the sustained per-client request rate. 0 disables limiting.
	RateLimitRPS float64 `toml:"rate_limit_rps" json:"rate_limit_rps"`
	// RateLimitBurst is the per-client burst allowance.
	RateLimitBurst int `toml:"rate_limit_burst" json:"rate_limit_burst"`
	// AllowedOrigins lists CORS origins. Empty means same-origin only.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
	// TrustedProxies may set X-Forwarded-For.
	TrustedProxies []string `toml:"trusted_proxies" json:"trusted_proxies"`
	// UserHeader names the request header carrying the acting username.
	// An admin named there bypasses maintenance mode.
	UserHeader string `toml:"user_header" json:"user_header"`
	// ShutdownTimeoutSecs bounds graceful shutdown.
	ShutdownTimeoutSecs int `toml:"shutdown_timeout_secs" json:"shutdown_timeout_secs"`
}

// StorageConfig selects the key-value substrate.
type StorageConfig struct {
	// Backend is one of memory, file, sqlite, postgres, s3.
	Backend string `toml:"backend" json:"backend"`
	// Path is the data file or database file for file and sqlite.
	Path string `toml:"path" json:"path"`
	// DSN is the Postgres connection URL.
	DSN string `toml:"dsn" json:"dsn"`

	S3 storage.S3Config `toml:"s3" json:"s3"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level"`
	Format     string `toml:"format" json:"format"`
	OutputPath string `toml:"output_path" json:"output_path"`
}

// ProviderConfig holds the defaults used when a runtime setting has never
// been written to the store.
type ProviderConfig struct {
	Name           string  `toml:"name" json:"name"`
	GeminiAPIKey   string  `toml:"gemini_api_key" json:"gemini_api_key"`
	GeminiModel    string  `toml:"gemini_model" json:"gemini_model"`
	GeminiBaseURL  string  `toml:"gemini_base_url" json:"gemini_base_url"`
	LocalEndpoint  string  `toml:"local_endpoint" json:"local_endpoint"`
	LocalModel     string  `toml:"local_model" json:"local_model"`
	OllamaURL      string  `toml:"ollama_url" json:"ollama_url"`
	OllamaModel    string  `toml:"ollama_model" json:"ollama_model"`
	Temperature    float64 `toml:"temperature" json:"temperature"`
	MaxTokens      int     `toml:"max_tokens" json:"max_tokens"`
	TimeoutSecs    int     `toml:"timeout_secs" json:"timeout_secs"`
	HistoryContext int     `toml:"history_context" json:"history_context"`
}

// Timeout is the per-request provider timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// ShutdownTimeout is the graceful shutdown bound.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSecs) * time.Second
}

// StorageOptions converts the storage section for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend: c.Storage.Backend,
		Path:    c.Storage.Path,
		DSN:     c.Storage.DSN,
		S3:      c.Storage.S3,
	}
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with every field at its default.
func Default() *Config {
	dataDir := ""
	if dir, err := ConfigDir(); err == nil {
		dataDir = dir
	}
	return &Config{
		Server: ServerConfig{
			Addr:                "127.0.0.1:8787",
			RateLimitRPS:        20,
			RateLimitBurst:      40,
			UserHeader:          "X-Aidev-User",
			ShutdownTimeoutSecs: 10,
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
			Path:    dataDir,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Provider: ProviderConfig{
			Name:           ProviderGemini,
			GeminiModel:    "gemini-1.5-flash",
			GeminiBaseURL:  "https://generativelanguage.googleapis.com/v1beta/openai/",
			LocalEndpoint:  "http://localhost:1234",
			LocalModel:     "local-model",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "qwen2.5-coder:7b",
			Temperature:    0.7,
			MaxTokens:      2048,
			TimeoutSecs:    120,
			HistoryContext: 10,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the aidev configuration directory, ~/.aidev.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".aidev"), nil
}

// ConfigPath returns the config file path. AIDEV_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := os.Getenv("AIDEV_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the default config file. A missing file yields defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads path over the defaults, then applies environment
// overrides and validates. A missing file is not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults restores fields a config file explicitly blanked.
func (c *Config) fillDefaults() {
	d := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.UserHeader == "" {
		c.Server.UserHeader = d.Server.UserHeader
	}
	if c.Server.ShutdownTimeoutSecs == 0 {
		c.Server.ShutdownTimeoutSecs = d.Server.ShutdownTimeoutSecs
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Provider.Name == "" {
		c.Provider.Name = d.Provider.Name
	}
	if c.Provider.GeminiModel == "" {
		c.Provider.GeminiModel = d.Provider.GeminiModel
	}
	if c.Provider.GeminiBaseURL == "" {
		c.Provider.GeminiBaseURL = d.Provider.GeminiBaseURL
	}
	if c.Provider.LocalEndpoint == "" {
		c.Provider.LocalEndpoint = d.Provider.LocalEndpoint
	}
	if c.Provider.LocalModel == "" {
		c.Provider.LocalModel = d.Provider.LocalModel
	}
	if c.Provider.OllamaURL == "" {
		c.Provider.OllamaURL = d.Provider.OllamaURL
	}
	if c.Provider.OllamaModel == "" {
		c.Provider.OllamaModel = d.Provider.OllamaModel
	}
	if c.Provider.MaxTokens == 0 {
		c.Provider.MaxTokens = d.Provider.MaxTokens
	}
	if c.Provider.TimeoutSecs == 0 {
		c.Provider.TimeoutSecs = d.Provider.TimeoutSecs
	}
	if c.Provider.HistoryContext == 0 {
		c.Provider.HistoryContext = d.Provider.HistoryContext
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# aidev configuration file\n")
	buf.WriteString("# Runtime provider settings are managed with `aidev settings`.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid field of a config.
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

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"console", "json"}
)

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.RateLimitRPS < 0 {
		add("server.rate_limit_rps", "must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		add("server.rate_limit_burst", "must be at least 1 when rate limiting is enabled")
	}
	if c.Server.ShutdownTimeoutSecs < 0 {
		add("server.shutdown_timeout_secs", "must not be negative")
	}

	switch c.Storage.Backend {
	case storage.BackendMemory, storage.BackendFile, storage.BackendSQLite:
	case storage.BackendPostgres:
		if c.Storage.DSN == "" {
			add("storage.dsn", "is required for the postgres backend")
		} else if u, err := url.Parse(c.Storage.DSN); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			add("storage.dsn", "must be a postgres:// URL")
		}
	case storage.BackendS3:
		if c.Storage.S3.Bucket == "" {
			add("storage.s3.bucket", "is required for the s3 backend")
		}
	default:
		add("storage.backend", "must be one of %s", strings.Join(storage.Backends, ", "))
	}

	if !contains(validLogLevels, c.Logging.Level) {
		add("logging.level", "must be one of %s", strings.Join(validLogLevels, ", "))
	}
	if !contains(validLogFormats, c.Logging.Format) {
		add("logging.format", "must be one of %s", strings.Join(validLogFormats, ", "))
	}

	if !contains(Providers, c.Provider.Name) {
		add("provider.name", "must be one of %s", strings.Join(Providers, ", "))
	}
	for field, raw := range map[string]string{
		"provider.local_endpoint":  c.Provider.LocalEndpoint,
		"provider.ollama_url":      c.Provider.OllamaURL,
		"provider.gemini_base_url": c.Provider.GeminiBaseURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add(field, "must be an absolute URL")
		}
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		add("provider.temperature", "must be between 0 and 2")
	}
	if c.Provider.MaxTokens <= 0 {
		add("provider.max_tokens", "must be positive")
	}
	if c.Provider.TimeoutSecs < 0 {
		add("provider.timeout_secs", "must not be negative")
	}
	if c.Provider.HistoryContext < 0 {
		add("provider.history_context", "must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - AIDEV_ADDR: server.addr
//   - AIDEV_BACKEND: storage.backend
//   - AIDEV_DATA: storage.path
//   - AIDEV_DSN: storage.dsn
//   - AIDEV_S3_BUCKET, AIDEV_S3_ENDPOINT, AIDEV_S3_REGION: storage.s3
//   - AIDEV_LOG_LEVEL, AIDEV_LOG_FORMAT: logging
//   - AIDEV_PROVIDER: provider.name
//   - AIDEV_GEMINI_KEY (or GEMINI_API_KEY): provider.gemini_api_key
//   - AIDEV_LOCAL_ENDPOINT: provider.local_endpoint
//   - AIDEV_OLLAMA_URL: provider.ollama_url
func (c *Config) ApplyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"AIDEV_ADDR", &c.Server.Addr},
		{"AIDEV_BACKEND", &c.Storage.Backend},
		{"AIDEV_DATA", &c.Storage.Path},
		{"AIDEV_DSN", &c.Storage.DSN},
		{"AIDEV_S3_BUCKET", &c.Storage.S3.Bucket},
		{"AIDEV_S3_ENDPOINT", &c.Storage.S3.Endpoint},
		{"AIDEV_S3_REGION", &c.Storage.S3.Region},
		{"AIDEV_LOG_LEVEL", &c.Logging.Level},
		{"AIDEV_LOG_FORMAT", &c.Logging.Format},
		{"AIDEV_PROVIDER", &c.Provider.Name},
		{"GEMINI_API_KEY", &c.Provider.GeminiAPIKey},
		{"AIDEV_GEMINI_KEY", &c.Provider.GeminiAPIKey},
		{"AIDEV_LOCAL_ENDPOINT", &c.Provider.LocalEndpoint},
		{"AIDEV_OLLAMA_URL", &c.Provider.OllamaURL},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value by its dotted toml key, e.g. "server.addr".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value by its dotted toml key. Strings are converted to the
// field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// fieldByTag finds the struct field whose toml tag equals name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(strVal == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	clone.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	return &clone
}

// String renders the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Provider.GeminiAPIKey != "" {
		safe.Provider.GeminiAPIKey = "[REDACTED]"
	}
	if safe.Storage.S3.SecretKey != "" {
		safe.Storage.S3.SecretKey = "[REDACTED]"
	}
	if safe.Storage.DSN != "" {
		if u, err := url.Parse(safe.Storage.DSN); err == nil && u.User != nil {
			u.User = url.UserPassword(u.User.Username(), "REDACTED")
			safe.Storage.DSN = u.String()
		}
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process configuration, loading it on first access.
// A load failure falls back to defaults.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil || cfg == nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal replaces the global configuration.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between tests.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
