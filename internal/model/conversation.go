// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"
	"time"
)

// MaxMessages is the maximum number of messages to keep in conversation history.
// When exceeded, old messages are pruned to prevent unbounded memory growth.
const MaxMessages = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// entry is the mutable form of a message. Streaming text accumulates in
// buf and is merged into msg.Text when the reply finishes.
type entry struct {
	msg Message
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	buf strings.Builder
}

func (e *entry) snapshot() Message {
	m := e.msg
	if m.Streaming {
		m.Text = e.buf.String()
	}
	return m
}

// Conversation holds the ordered chat history. It is safe for concurrent
// use: the UI reads snapshots while a stream goroutine appends tokens.
type Conversation struct {
	mu      sync.RWMutex
	welcome string
	entries []*entry
	updated time.Time
}

// NewConversation creates a conversation seeded with a scripted welcome
// turn. An empty welcome starts with no messages.
func NewConversation(welcome string) *Conversation {
	c := &Conversation{welcome: welcome}
	c.reset()
	return c
}

func (c *Conversation) reset() {
	c.entries = c.entries[:0]
	if c.welcome != "" {
		msg := NewMessage(RoleAssistant, c.welcome)
		msg.Scripted = true
		c.entries = append(c.entries, &entry{msg: msg})
	}
	c.updated = time.Now()
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddUser appends a user turn and returns its snapshot.
func (c *Conversation) AddUser(text string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{msg: NewMessage(RoleUser, text)}
	c.append(e)
	return e.msg
}

// StartAssistant appends an empty assistant turn that receives streamed
// tokens until Finish, Interrupt or Discard is called.
func (c *Conversation) StartAssistant() Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{msg: NewMessage(RoleAssistant, "")}
	e.msg.Streaming = true
	c.append(e)
	return e.msg
}

// AppendToken appends a streamed token to the reply with the given id.
// Returns false if the message is unknown or no longer streaming.
func (c *Conversation) AppendToken(id, token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.find(id)
	if e == nil || !e.msg.Streaming {
		return false
	}
	e.buf.WriteString(token)
	c.updated = time.Now()
	return true
}

// Finish completes a streaming reply.
func (c *Conversation) Finish(id string) bool {
	return c.complete(id, false)
}

// Interrupt completes a streaming reply that was cancelled part way.
// The text received so far is kept.
func (c *Conversation) Interrupt(id string) bool {
	return c.complete(id, true)
}

func (c *Conversation) complete(id string, interrupted bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.find(id)
	if e == nil || !e.msg.Streaming {
		return false
	}
	e.msg.Text = e.buf.String()
	e.buf.Reset()
	e.msg.Streaming = false
	e.msg.Interrupted = interrupted
	c.updated = time.Now()
	return true
}

// Discard removes a message, typically an empty reply after a failed or
// cancelled stream. Scripted turns cannot be discarded.
func (c *Conversation) Discard(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.msg.ID == id && !e.msg.Scripted {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			c.updated = time.Now()
			return true
		}
	}
	return false
}

// ToggleFeedback flips a reply between liked and no feedback and returns
// the new state. Only assistant replies accept feedback.
func (c *Conversation) ToggleFeedback(id string) (Feedback, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.find(id)
	if e == nil || e.msg.Role != RoleAssistant {
		return FeedbackNone, false
	}
	if e.msg.Feedback == FeedbackLiked {
		e.msg.Feedback = FeedbackNone
	} else {
		e.msg.Feedback = FeedbackLiked
	}
	return e.msg.Feedback, true
}

// Clear drops every message except the welcome turn.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// =============================================================================
// QUERIES
// =============================================================================

// History returns a snapshot of all messages in order.
func (c *Conversation) History() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.snapshot()
	}
	return out
}

// Get returns the message with the given id.
func (c *Conversation) Get(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e := c.find(id); e != nil {
		return e.snapshot(), true
	}
	return Message{}, false
}

// LastAssistant returns the most recent assistant reply that is not
// scripted.
func (c *Conversation) LastAssistant() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if e.msg.Role == RoleAssistant && !e.msg.Scripted {
			return e.snapshot(), true
		}
	}
	return Message{}, false
}

// UpdatedAt returns the time of the last change.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

// Len returns the number of messages, including the welcome turn.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Conversation) find(id string) *entry {
	for _, e := range c.entries {
		if e.msg.ID == id {
			return e
		}
	}
	return nil
}

func (c *Conversation) append(e *entry) {
	c.entries = append(c.entries, e)
	c.updated = time.Now()
	c.pruneOldMessages()
}

// pruneOldMessages removes old messages when history exceeds MaxMessages.
// Scripted turns are kept; the oldest other messages go first.
func (c *Conversation) pruneOldMessages() {
	if len(c.entries) <= MaxMessages {
		return
	}

	var scripted, others []*entry
	for _, e := range c.entries {
		if e.msg.Scripted {
			scripted = append(scripted, e)
		} else {
			others = append(others, e)
		}
	}

	if keep := MaxMessages - len(scripted); len(others) > keep && keep > 0 {
		others = others[len(others)-keep:]
	}

	c.entries = make([]*entry, 0, len(scripted)+len(others))
	c.entries = append(c.entries, scripted...)
	c.entries = append(c.entries, others...)
}
