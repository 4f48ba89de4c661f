// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/npchat/internal/stream"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamTickMsg is sent at the configured frame rate while a reply streams.
type StreamTickMsg struct {
	Time time.Time
}

// StreamCompleteMsg signals that a reply stream has ended, whichever way.
type StreamCompleteMsg struct {
	MessageID string
	Stats     stream.Stats
	Error     error // set only when Stats.Outcome is OutcomeFailed
}

// =============================================================================
// CONFIGURATION MESSAGES
// =============================================================================

// ClientUpdatedMsg replaces the stream client, typically after the config
// file was reloaded. A reply already streaming keeps its old client.
type ClientUpdatedMsg struct {
	Client Streamer
}

// ConfigErrorMsg reports a config reload that failed validation.
type ConfigErrorMsg struct {
	Error error
}
