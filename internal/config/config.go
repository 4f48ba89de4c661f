// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/npchat/internal/gemini"
	"github.com/jeranaias/npchat/internal/logger"
	"github.com/jeranaias/npchat/internal/stream"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete npchat configuration.
type Config struct {
	API    APIConfig    `toml:"api" json:"api"`
	Stream StreamConfig `toml:"stream" json:"stream"`
	Chat   ChatConfig   `toml:"chat" json:"chat"`
	UI     UIConfig     `toml:"ui" json:"ui"`
	Log    LogConfig    `toml:"log" json:"log"`
}

// APIConfig contains the remote service settings.
type APIConfig struct {
	// Key is the Gemini API key. Prefer NPCHAT_API_KEY over storing it here.
	Key string `toml:"key" json:"key"`
	// BaseURL is the API host, without version
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIVersion is the version path segment, e.g. "v1beta"
	APIVersion string `toml:"api_version" json:"api_version"`
	// Model is the model to stream from
	Model string `toml:"model" json:"model"`
	// RequestsPerMinute throttles outgoing requests (0 = unlimited)
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`
}

// StreamConfig contains response decoding settings.
type StreamConfig struct {
	// Framing is "line" (Server-Sent Events) or "brace" (streamed JSON array)
	Framing string `toml:"framing" json:"framing"`
	// TokenPath is the JMESPath expression locating text in each unit
	TokenPath string `toml:"token_path" json:"token_path"`
	// MaxBufferBytes caps a single unresolved unit
	MaxBufferBytes int `toml:"max_buffer_bytes" json:"max_buffer_bytes"`
	// ReadSize is the transport read buffer size
	ReadSize int `toml:"read_size" json:"read_size"`
}

// ChatConfig contains conversation settings.
type ChatConfig struct {
	BotName           string  `toml:"bot_name" json:"bot_name"`
	WelcomeMessage    string  `toml:"welcome_message" json:"welcome_message"`
	SystemInstruction string  `toml:"system_instruction" json:"system_instruction"`
	Temperature       float64 `toml:"temperature" json:"temperature"`
	CandidateCount    int     `toml:"candidate_count" json:"candidate_count"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// MaxFPS caps how often streamed text is redrawn
	MaxFPS int `toml:"max_fps" json:"max_fps"`
	// WordWrap wraps long lines to the terminal width
	WordWrap bool `toml:"word_wrap" json:"word_wrap"`
}

// LogConfig contains diagnostic logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `toml:"level" json:"level"`
	// File receives log output; the TUI always logs to a file
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           gemini.DefaultBaseURL,
			APIVersion:        gemini.DefaultAPIVersion,
			Model:             gemini.DefaultModel,
			RequestsPerMinute: 0, // unlimited
		},

		Stream: StreamConfig{
			Framing:        string(stream.StrategyLine),
			TokenPath:      stream.DefaultTokenPath,
			MaxBufferBytes: stream.DefaultMaxBuffer,
			ReadSize:       stream.DefaultReadSize,
		},

		Chat: ChatConfig{
			BotName:           gemini.DefaultBotName,
			WelcomeMessage:    gemini.DefaultWelcome,
			SystemInstruction: gemini.DefaultSystemInstruction,
			Temperature:       gemini.DefaultTemperature,
			CandidateCount:    gemini.DefaultCandidateCount,
		},

		UI: UIConfig{
			Theme:    "auto",
			MaxFPS:   30,
			WordWrap: true,
		},

		Log: LogConfig{
			Level: "warn",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the npchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".npchat"), nil
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

// DefaultLogPath returns the log file used by the TUI when none is configured.
func DefaultLogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "npchat.log"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
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
	var loadErr error

	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		if loadErr == nil {
			loadErr = err
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// LoadTOML decodes a TOML file into cfg. Keys absent from the file keep
// their current values.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		logger.Warn("could not ensure secure permissions", "path", path, "error", err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	for _, key := range md.Undecoded() {
		logger.Warn("unknown config key", "path", path, "key", key.String())
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg. Keys absent from the file keep
// their current values.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		logger.Warn("could not ensure secure permissions", "path", path, "error", err)
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

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		// Default to TOML
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// fillDefaults fills in values that were set empty in a file.
// Temperature is left alone: zero is a valid setting.
func fillDefaults(cfg *Config) {
	defaults := Default()

	// API
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}
	if cfg.API.APIVersion == "" {
		cfg.API.APIVersion = defaults.API.APIVersion
	}
	if cfg.API.Model == "" {
		cfg.API.Model = defaults.API.Model
	}

	// Stream
	if cfg.Stream.Framing == "" {
		cfg.Stream.Framing = defaults.Stream.Framing
	}
	if cfg.Stream.TokenPath == "" {
		cfg.Stream.TokenPath = defaults.Stream.TokenPath
	}
	if cfg.Stream.MaxBufferBytes == 0 {
		cfg.Stream.MaxBufferBytes = defaults.Stream.MaxBufferBytes
	}
	if cfg.Stream.ReadSize == 0 {
		cfg.Stream.ReadSize = defaults.Stream.ReadSize
	}

	// Chat
	if cfg.Chat.BotName == "" {
		cfg.Chat.BotName = defaults.Chat.BotName
	}
	if cfg.Chat.CandidateCount == 0 {
		cfg.Chat.CandidateCount = defaults.Chat.CandidateCount
	}

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.MaxFPS == 0 {
		cfg.UI.MaxFPS = defaults.UI.MaxFPS
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
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

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# npchat configuration file\n")
	buf.WriteString("# Generated by npchat - edit with care\n")
	buf.WriteString("#\n")
	buf.WriteString("# The API key is best supplied through NPCHAT_API_KEY instead of this file.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// SaveJSON saves the configuration to a JSON file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so a crash never leaves a half-written config behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	if err := f.Chmod(0600); err != nil {
		f.Close()
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
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

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// API
	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("api.base_url", "invalid URL '%s', must be http(s)://host", c.API.BaseURL)
	}
	if strings.TrimSpace(c.API.Model) == "" {
		add("api.model", "must not be empty")
	} else if strings.ContainsAny(c.API.Model, "/?#: ") {
		add("api.model", "invalid model name '%s'", c.API.Model)
	}
	if c.API.RequestsPerMinute < 0 {
		add("api.requests_per_minute", "must be >= 0, got %d", c.API.RequestsPerMinute)
	}

	// Stream
	if _, err := stream.ParseStrategy(c.Stream.Framing); err != nil {
		add("stream.framing", "invalid framing '%s', must be one of: line, brace", c.Stream.Framing)
	}
	if err := stream.ValidateTokenPath(c.Stream.TokenPath); err != nil {
		add("stream.token_path", "%v", err)
	}
	if c.Stream.MaxBufferBytes < 1024 || c.Stream.MaxBufferBytes > 64*1024*1024 {
		add("stream.max_buffer_bytes", "must be between 1024 and 67108864, got %d", c.Stream.MaxBufferBytes)
	}
	if c.Stream.ReadSize < 512 || c.Stream.ReadSize > 1024*1024 {
		add("stream.read_size", "must be between 512 and 1048576, got %d", c.Stream.ReadSize)
	}

	// Chat
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		add("chat.temperature", "must be between 0 and 2, got %g", c.Chat.Temperature)
	}
	if c.Chat.CandidateCount < 1 || c.Chat.CandidateCount > 8 {
		add("chat.candidate_count", "must be between 1 and 8, got %d", c.Chat.CandidateCount)
	}

	// UI
	switch strings.ToLower(c.UI.Theme) {
	case "auto", "dark", "light":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme)
	}
	if c.UI.MaxFPS < 1 || c.UI.MaxFPS > 120 {
		add("ui.max_fps", "must be between 1 and 120, got %d", c.UI.MaxFPS)
	}

	// Log
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GEMINI_API_KEY: overrides api.key
//   - NPCHAT_API_KEY: overrides api.key (takes precedence over GEMINI_API_KEY)
//   - NPCHAT_MODEL: overrides api.model
//   - NPCHAT_BASE_URL: overrides api.base_url
//   - NPCHAT_FRAMING: overrides stream.framing
//   - NPCHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.API.Key = key
	}
	if key := os.Getenv("NPCHAT_API_KEY"); key != "" {
		c.API.Key = key
	}
	if model := os.Getenv("NPCHAT_MODEL"); model != "" {
		c.API.Model = model
	}
	if baseURL := os.Getenv("NPCHAT_BASE_URL"); baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if framing := os.Getenv("NPCHAT_FRAMING"); framing != "" {
		c.Stream.Framing = framing
	}
	if level := os.Getenv("NPCHAT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "stream.framing").
// Keys are the TOML names.
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
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

// lookup walks the struct by TOML tag names.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i], "."))
		}
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
	}
	return v, nil
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if strings.EqualFold(tag, name) {
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
				return fmt.Errorf("invalid integer value: %w", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %w", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %w", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.New("nil value")
	}
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

// Keys returns all configuration keys in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix, _, _ := strings.Cut(section.Tag.Get("toml"), ",")
		for j := 0; j < section.Type.NumField(); j++ {
			name, _, _ := strings.Cut(section.Type.Field(j).Tag.Get("toml"), ",")
			keys = append(keys, prefix+"."+name)
		}
	}
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a copy of the configuration. Config holds only value
// fields, so a struct copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Redacted returns a copy safe to display or log.
// SECURITY: The API key never appears in output.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.API.Key != "" {
		safe.API.Key = "[REDACTED]"
	}
	return safe
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts the API key.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
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

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			logger.Warn("config load failed, using defaults", "error", err)
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
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
