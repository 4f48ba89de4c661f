// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// FEEDBACK
// =============================================================================

// Feedback is the user's rating of an assistant reply.
type Feedback int

const (
	FeedbackNone Feedback = iota
	FeedbackLiked
)

// String returns the feedback name.
func (f Feedback) String() string {
	if f == FeedbackLiked {
		return "liked"
	}
	return "none"
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a snapshot of a single conversation turn.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`

	// Scripted marks client-authored turns such as the welcome message.
	// They are displayed but never sent upstream.
	Scripted bool `json:"scripted,omitempty"`

	Feedback Feedback `json:"feedback,omitempty"`

	// Streaming state
	Streaming   bool `json:"-"`
	Interrupted bool `json:"interrupted,omitempty"` // reply was cancelled part way
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// IsEmpty returns true if the message has no text.
func (m Message) IsEmpty() bool {
	return len(m.Text) == 0
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Text)
	if len(runes) <= maxLen {
		return m.Text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
