// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStreamingBuffer_FlushOnBatchSize(t *testing.T) {
	sb := NewStreamingBuffer(1) // one frame per second: only the batch size triggers

	for i := 0; i < defaultBatchSize-1; i++ {
		sb.Write("a")
	}
	_, ok := sb.Flush()
	assert.False(t, ok)

	sb.Write("a")
	content, ok := sb.Flush()
	assert.True(t, ok)
	assert.Equal(t, strings.Repeat("a", defaultBatchSize), content)
	assert.Zero(t, sb.Pending())
}

func TestStreamingBuffer_FlushOnInterval(t *testing.T) {
	sb := NewStreamingBuffer(100)
	sb.Write("tok")

	time.Sleep(2 * sb.Interval())
	content, ok := sb.Flush()
	assert.True(t, ok)
	assert.Equal(t, "tok", content)
}

func TestStreamingBuffer_ForceFlushAndReset(t *testing.T) {
	sb := NewStreamingBuffer(1)

	_, ok := sb.ForceFlush()
	assert.False(t, ok)

	sb.Write("x")
	content, ok := sb.ForceFlush()
	assert.True(t, ok)
	assert.Equal(t, "x", content)

	sb.Write("y")
	sb.Reset()
	_, ok = sb.ForceFlush()
	assert.False(t, ok)
}

func TestStreamingBuffer_Interval(t *testing.T) {
	assert.Equal(t, time.Second/30, NewStreamingBuffer(0).Interval())
	assert.Equal(t, time.Second/30, NewStreamingBuffer(1000).Interval())
	assert.Equal(t, time.Second/60, NewStreamingBuffer(60).Interval())
}

func TestStreamingBuffer_ConcurrentWrites(t *testing.T) {
	sb := NewStreamingBuffer(1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sb.Write("z")
			}
		}()
	}
	wg.Wait()

	content, ok := sb.ForceFlush()
	assert.True(t, ok)
	assert.Len(t, content, 1000)
}
