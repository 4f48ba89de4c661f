// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, name := range []string{
		"GEMINI_API_KEY", "NPCHAT_API_KEY", "NPCHAT_MODEL",
		"NPCHAT_BASE_URL", "NPCHAT_FRAMING", "NPCHAT_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "line", cfg.Stream.Framing)
	assert.Equal(t, "candidates[0].content.parts[0].text", cfg.Stream.TokenPath)
	assert.Empty(t, cfg.API.Key)
}

func TestLoad_NoFiles(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_PrefersTOML(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".npchat", "config.toml"), "[api]\nmodel = \"from-toml\"\n")
	writeFile(t, filepath.Join(home, ".npchat", "config.json"), `{"api":{"model":"from-json"}}`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-toml", cfg.API.Model)
}

func TestLoad_BrokenFileFallsBack(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".npchat", "config.toml"), "[api\nmodel = ")

	cfg, err := Load()
	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, Default().API.Model, cfg.API.Model)
}

func TestLoadFromPath_PartialTOML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[stream]
framing = "brace"

[chat]
temperature = 0.0
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "brace", cfg.Stream.Framing)
	assert.Zero(t, cfg.Chat.Temperature, "zero temperature is kept")
	assert.Equal(t, Default().API.Model, cfg.API.Model)
	assert.Equal(t, Default().Chat.WelcomeMessage, cfg.Chat.WelcomeMessage)
}

func TestLoadFromPath_JSON(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"api":{"model":"gemini-json","requests_per_minute":30},"ui":{"theme":"light"}}`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-json", cfg.API.Model)
	assert.Equal(t, 30, cfg.API.RequestsPerMinute)
	assert.Equal(t, "light", cfg.UI.Theme)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[stream]\nframing = \"xml\"\ntoken_path = \"candidates[\"\n")

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.framing")
	assert.Contains(t, err.Error(), "stream.token_path")
}

func TestLoadFromPath_FixesPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api]\nkey = \"secret\"\n"), 0644))

	_, err := LoadFromPath(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.API.BaseURL = "ftp://example.com" }, "api.base_url"},
		{"no host", func(c *Config) { c.API.BaseURL = "https://" }, "api.base_url"},
		{"empty model", func(c *Config) { c.API.Model = " " }, "api.model"},
		{"model with slash", func(c *Config) { c.API.Model = "a/b" }, "api.model"},
		{"negative rpm", func(c *Config) { c.API.RequestsPerMinute = -1 }, "api.requests_per_minute"},
		{"framing", func(c *Config) { c.Stream.Framing = "xml" }, "stream.framing"},
		{"token path", func(c *Config) { c.Stream.TokenPath = "a[" }, "stream.token_path"},
		{"tiny buffer", func(c *Config) { c.Stream.MaxBufferBytes = 10 }, "stream.max_buffer_bytes"},
		{"read size", func(c *Config) { c.Stream.ReadSize = 1 }, "stream.read_size"},
		{"temperature", func(c *Config) { c.Chat.Temperature = 2.5 }, "chat.temperature"},
		{"candidates", func(c *Config) { c.Chat.CandidateCount = 0 }, "chat.candidate_count"},
		{"theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"fps", func(c *Config) { c.UI.MaxFPS = 500 }, "ui.max_fps"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidateErrors_Joined(t *testing.T) {
	errs := ValidateErrors{{Field: "a", Message: "x"}, {Field: "b", Message: "y"}}
	assert.Equal(t, "a: x; b: y", errs.Error())
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("NPCHAT_MODEL", "gemini-env")
	t.Setenv("NPCHAT_FRAMING", "brace")
	t.Setenv("NPCHAT_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "gemini-key", cfg.API.Key)
	assert.Equal(t, "gemini-env", cfg.API.Model)
	assert.Equal(t, "brace", cfg.Stream.Framing)
	assert.Equal(t, "debug", cfg.Log.Level)

	t.Setenv("NPCHAT_API_KEY", "npchat-key")
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "npchat-key", cfg.API.Key, "NPCHAT_API_KEY takes precedence")
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".npchat", "config.toml"), "[api]\nmodel = \"from-file\"\n")
	t.Setenv("NPCHAT_MODEL", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.API.Model)
}

// =============================================================================
// SAVE
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.API.Model = "gemini-saved"
	cfg.Chat.Temperature = 0
	cfg.UI.WordWrap = false
	require.NoError(t, SaveTOML(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# npchat configuration file")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveJSON_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Stream.Framing = "brace"
	require.NoError(t, SaveJSON(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

// =============================================================================
// GET / SET
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("stream.framing")
	require.NoError(t, err)
	assert.Equal(t, "line", v)

	require.NoError(t, cfg.Set("stream.framing", "brace"))
	require.NoError(t, cfg.Set("chat.temperature", "0.3"))
	require.NoError(t, cfg.Set("api.requests_per_minute", "12"))
	require.NoError(t, cfg.Set("ui.word_wrap", "false"))
	require.NoError(t, cfg.Set("ui.max_fps", 60))

	assert.Equal(t, "brace", cfg.Stream.Framing)
	assert.InDelta(t, 0.3, cfg.Chat.Temperature, 1e-9)
	assert.Equal(t, 12, cfg.API.RequestsPerMinute)
	assert.False(t, cfg.UI.WordWrap)
	assert.Equal(t, 60, cfg.UI.MaxFPS)
}

func TestGetSet_Errors(t *testing.T) {
	cfg := Default()

	_, err := cfg.Get("")
	assert.Error(t, err)
	_, err = cfg.Get("api.nope")
	assert.ErrorContains(t, err, "unknown field")
	_, err = cfg.Get("api")
	assert.ErrorContains(t, err, "section")
	_, err = cfg.Get("api.model.extra")
	assert.Error(t, err)

	assert.ErrorContains(t, cfg.Set("ui.max_fps", "fast"), "invalid integer")
	assert.ErrorContains(t, cfg.Set("ui.word_wrap", "maybe"), "invalid boolean")
	assert.Error(t, cfg.Set("ui.max_fps", []int{1}))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "api.key")
	assert.Contains(t, keys, "stream.framing")
	assert.Contains(t, keys, "log.file")

	cfg := Default()
	for _, key := range keys {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestString_RedactsKey(t *testing.T) {
	cfg := Default()
	cfg.API.Key = "AIza-very-secret"

	out := cfg.String()
	assert.NotContains(t, out, "AIza-very-secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Equal(t, "AIza-very-secret", cfg.API.Key, "original is untouched")
}

func TestClone_Independent(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.API.Model = "other"
	assert.NotEqual(t, cfg.API.Model, clone.API.Model)
}

// =============================================================================
// GLOBAL
// =============================================================================

// TestConfig_ConcurrentAccess checks Global and SetGlobal under -race.
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := Default()
			c.API.Model = "concurrent"
			SetGlobal(c)
		}()
		go func() {
			defer wg.Done()
			_ = Global().API.Model
		}()
	}
	wg.Wait()

	assert.Equal(t, "concurrent", Global().API.Model)
}

func TestReloadGlobal(t *testing.T) {
	home := isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	assert.Equal(t, Default().API.Model, Global().API.Model)

	writeFile(t, filepath.Join(home, ".npchat", "config.toml"), "[api]\nmodel = \"reloaded\"\n")
	require.NoError(t, ReloadGlobal())
	assert.Equal(t, "reloaded", Global().API.Model)
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_Reloads(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[api]\nmodel = \"before\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		cfg *Config
		err error
	}
	results := make(chan result, 4)
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
			results <- result{cfg, err}
		})
	}()

	// Give the watcher time to register, then replace the file atomically.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "unrelated.toml"), "x = 1\n")
	cfg := Default()
	cfg.API.Model = "after"
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case r := <-results:
		require.NoError(t, r.err)
		assert.Equal(t, "after", r.cfg.API.Model)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after config change")
	}

	// An invalid edit is reported, not applied.
	writeFile(t, path, "[stream]\nframing = \"xml\"\n")
	select {
	case r := <-results:
		assert.Error(t, r.err)
		assert.Nil(t, r.cfg)
	case <-time.After(3 * time.Second):
		t.Fatal("no callback after invalid change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.toml"), func(*Config, error) {})
	assert.Error(t, err)
}
