// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jeranaias/npchat/internal/config"
	"github.com/jeranaias/npchat/internal/gemini"
	"github.com/jeranaias/npchat/internal/logger"
	"github.com/jeranaias/npchat/internal/metrics"
	"github.com/jeranaias/npchat/internal/stream"
)

// shutdownTimeout bounds how long the metrics exporter may take to stop.
const shutdownTimeout = 5 * time.Second

// =============================================================================
// APP WIRING
// =============================================================================

// app holds everything a chat command needs: the effective config, the
// stream client and optional metrics.
type app struct {
	cfg        *config.Config
	configPath string
	client     *gemini.Client
	metrics    *metrics.Metrics // nil unless --metrics-addr is set
	exporter   *metrics.Exporter
	closers    []func() error
}

// newApp loads config, applies flag overrides, sets up logging and
// metrics, and builds the client. logToFile sends logs to the log file
// even when none is configured, so they do not corrupt the TUI.
func newApp(args Args, logToFile bool) (*app, error) {
	cfg, path, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, configPath: path}

	closeLog, err := setupLogging(cfg, args, logToFile)
	if err != nil {
		return nil, NewCommandError("log", "open", err)
	}
	a.closers = append(a.closers, closeLog)

	client, err := NewClientFromConfig(cfg)
	if err != nil {
		a.Close()
		return nil, &ConfigError{Path: path, Err: err}
	}
	if !client.IsConfigured() {
		a.Close()
		return nil, gemini.ErrNotConfigured
	}
	a.client = client

	if args.MetricsAddr != "" {
		if err := a.startMetrics(args.MetricsAddr); err != nil {
			a.Close()
			return nil, err
		}
	}

	logger.Debug("npchat starting",
		"version", Version,
		"config", path,
		"model", cfg.API.Model,
		"framing", cfg.Stream.Framing,
		"api_key", client.APIKeyMasked())
	return a, nil
}

func (a *app) startMetrics(addr string) error {
	a.metrics = metrics.New()
	a.exporter = metrics.NewExporter(addr, a.metrics)
	if err := a.exporter.Start(); err != nil {
		return NewCommandError("metrics", "listen", err)
	}
	logger.Info("metrics exporter listening", "addr", a.exporter.Addr())

	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.exporter.Shutdown(ctx)
	})
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}

// =============================================================================
// CONFIG
// =============================================================================

// loadConfig loads the file named by --config, or the default config
// files, and applies command-line overrides. It returns the path that
// should be watched for changes.
func loadConfig(args Args) (*config.Config, string, error) {
	var cfg *config.Config
	path := args.ConfigPath

	if path != "" {
		loaded, err := config.LoadFromPath(path)
		if err != nil {
			return nil, "", &ConfigError{Path: path, Err: err}
		}
		cfg = loaded
	} else {
		loaded, err := config.Load()
		if loaded == nil {
			return nil, "", &ConfigError{Err: err}
		}
		if err != nil {
			logger.Warn("ignoring config file, using defaults", "error", err)
		}
		cfg = loaded
		path = activeConfigPath()
	}

	if err := applyFlags(cfg, args); err != nil {
		return nil, "", &ConfigError{Path: path, Err: err}
	}
	return cfg, path, nil
}

// applyFlags overrides cfg with command-line flags and revalidates.
// Flags win over both the file and the environment.
func applyFlags(cfg *config.Config, args Args) error {
	if args.Model != "" {
		cfg.API.Model = args.Model
	}
	if args.Framing != "" {
		cfg.Stream.Framing = args.Framing
	}
	return cfg.Validate()
}

// activeConfigPath returns the config file Load would read: TOML if it
// exists, else JSON if it exists, else the TOML path.
func activeConfigPath() string {
	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath
	}
	if jsonPath, err := config.ConfigPathJSON(); err == nil {
		if _, err := os.Stat(jsonPath); err == nil {
			return jsonPath
		}
	}
	return tomlPath
}

// NewClientFromConfig builds a Gemini client from cfg.
func NewClientFromConfig(cfg *config.Config) (*gemini.Client, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	strategy, err := stream.ParseStrategy(cfg.Stream.Framing)
	if err != nil {
		return nil, fmt.Errorf("stream.framing: %w", err)
	}

	return gemini.NewClient(cfg.API.Key).
		WithBaseURL(cfg.API.BaseURL).
		WithAPIVersion(cfg.API.APIVersion).
		WithModel(cfg.API.Model).
		WithStrategy(strategy).
		WithTokenPath(cfg.Stream.TokenPath).
		WithBufferLimits(cfg.Stream.MaxBufferBytes, cfg.Stream.ReadSize).
		WithRateLimit(cfg.API.RequestsPerMinute).
		WithGeneration(cfg.Chat.SystemInstruction, cfg.Chat.Temperature, cfg.Chat.CandidateCount), nil
}

// =============================================================================
// LOGGING
// =============================================================================

// setupLogging applies the configured level, then -v / -q. Output goes to
// log.file when set; with toFile it falls back to the default log path.
func setupLogging(cfg *config.Config, args Args, toFile bool) (func() error, error) {
	if lvl, ok := logger.ParseLevel(cfg.Log.Level); ok {
		logger.SetLevel(lvl)
	}
	switch {
	case args.Verbose:
		logger.SetVerbose(true)
	case args.Quiet:
		logger.SetLevel(slog.LevelError)
	}

	path := cfg.Log.File
	if path == "" && toFile {
		if err := config.EnsureConfigDir(); err != nil {
			return nil, err
		}
		p, err := config.DefaultLogPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if path == "" {
		return func() error { return nil }, nil
	}
	return logger.OpenFile(path)
}
