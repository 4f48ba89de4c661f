// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the npchat command line.
//
// # Commands
//
//   - tui: full-screen Bubble Tea chat (the default on a terminal)
//   - chat: line-mode REPL with input history
//   - ask: one-shot question, reply streamed to stdout
//   - config: show, path, init, get, set and keys
//   - version, help
//
// Global flags (--config, --model, --framing, --metrics-addr, -v, -q)
// override the config file and environment. Handlers return errors;
// Run displays them once and maps them to exit codes (see ExitCode).
package cli
