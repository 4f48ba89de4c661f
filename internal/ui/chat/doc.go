// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view for npchat.
//
// The view shows the conversation in a scrolling viewport with an input
// line below it. Submitting a prompt starts a reply stream: a command
// goroutine pulls tokens from the stream.Sequencer into a StreamingBuffer,
// and a frame-rate tick moves buffered text into the conversation. Esc
// cancels the running reply; the text received so far is kept.
//
// # Commands
//
//   - /clear - start over from the welcome message
//   - /like  - toggle a thumbs-up on the last reply
//   - /help  - show key bindings and commands
//   - /quit  - exit
package chat
