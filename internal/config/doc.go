// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for npchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and live reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: Endpoint, model and credentials
//   - StreamConfig: Framing strategy and decoder limits
//   - ChatConfig: Persona, welcome turn and sampling
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (NPCHAT_*, GEMINI_API_KEY)
//   - ~/.npchat/config.toml
//   - ~/.npchat/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access and modify values with dot notation:
//
//	framing, _ := cfg.Get("stream.framing")
//	cfg.Set("api.model", "gemini-2.5-pro")
//	config.Save(cfg)
//
// Reload on change:
//
//	go config.Watch(ctx, path, func(cfg *config.Config, err error) { ... })
package config
