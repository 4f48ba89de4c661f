// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// STREAMING BUFFER
// =============================================================================

const (
	defaultBatchSize = 15
	defaultMaxFPS    = 30
	maxMaxFPS        = 120
)

// StreamingBuffer batches tokens between frames. The stream goroutine
// writes; the Bubble Tea loop flushes on each tick. Content is released
// when the batch size is reached or a frame interval has passed.
type StreamingBuffer struct {
	mu         sync.Mutex
	buffer     strings.Builder
	tokenCount int
	lastFlush  time.Time

	batchSize int
	interval  time.Duration
}

// NewStreamingBuffer creates a buffer that flushes at most maxFPS times a
// second. Out-of-range values use 30 fps.
func NewStreamingBuffer(maxFPS int) *StreamingBuffer {
	if maxFPS <= 0 || maxFPS > maxMaxFPS {
		maxFPS = defaultMaxFPS
	}
	return &StreamingBuffer{
		batchSize: defaultBatchSize,
		interval:  time.Second / time.Duration(maxFPS),
		lastFlush: time.Now(),
	}
}

// Write adds a token. Called from the stream goroutine.
func (sb *StreamingBuffer) Write(token string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.buffer.WriteString(token)
	sb.tokenCount++
}

// Flush returns the buffered text if a batch or a frame interval is due.
func (sb *StreamingBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	if sb.tokenCount < sb.batchSize && time.Since(sb.lastFlush) < sb.interval {
		return "", false
	}
	return sb.takeLocked(), true
}

// ForceFlush returns all buffered text regardless of thresholds. Used when
// a stream ends.
func (sb *StreamingBuffer) ForceFlush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	return sb.takeLocked(), true
}

func (sb *StreamingBuffer) takeLocked() string {
	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.tokenCount = 0
	sb.lastFlush = time.Now()
	return content
}

// Reset clears the buffer without flushing.
func (sb *StreamingBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.buffer.Reset()
	sb.tokenCount = 0
	sb.lastFlush = time.Now()
}

// Pending returns the number of tokens waiting to be flushed.
func (sb *StreamingBuffer) Pending() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.tokenCount
}

// Interval returns the time between frames.
func (sb *StreamingBuffer) Interval() time.Duration {
	return sb.interval
}

// streamTickCmd schedules the next frame.
func streamTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
