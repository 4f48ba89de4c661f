// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jeranaias/npchat/internal/logger"
)

// =============================================================================
// FRAMER CONTRACT
// =============================================================================

// DefaultMaxBuffer is the largest unresolved unit a framer keeps (1 MiB).
const DefaultMaxBuffer = 1024 * 1024

// Framer reassembles complete JSON documents from decoded text chunks.
//
// A Framer belongs to exactly one stream and is not safe for concurrent use.
type Framer interface {
	// Feed appends chunk to the buffer and returns every unit that is now
	// complete, in arrival order. It never blocks.
	Feed(chunk string) []string

	// Remainder returns the buffered text not yet resolved into a unit.
	Remainder() string
}

// Strategy selects a framing algorithm.
type Strategy string

const (
	// StrategyLine frames Server-Sent Events: one "data:" line per unit.
	StrategyLine Strategy = "line"

	// StrategyBrace frames bare JSON objects by balancing braces.
	StrategyBrace Strategy = "brace"
)

// Strategies lists the supported framing strategies.
var Strategies = []Strategy{StrategyLine, StrategyBrace}

// ParseStrategy converts a configuration value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyLine, "sse":
		return StrategyLine, nil
	case StrategyBrace, "json":
		return StrategyBrace, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// framerOptions is shared by both framers.
type framerOptions struct {
	maxBuffer int
	log       *slog.Logger
}

// FramerOption configures a Framer.
type FramerOption func(*framerOptions)

// WithMaxBuffer bounds the size of one unresolved unit. A unit that grows
// past n bytes is dropped whole: the rest of it is skipped as it arrives and
// never framed. n <= 0 means DefaultMaxBuffer.
func WithMaxBuffer(n int) FramerOption {
	return func(o *framerOptions) {
		if n > 0 {
			o.maxBuffer = n
		}
	}
}

// WithFramerLogger sets the logger used for framing diagnostics.
func WithFramerLogger(l *slog.Logger) FramerOption {
	return func(o *framerOptions) {
		if l != nil {
			o.log = l
		}
	}
}

func buildFramerOptions(opts []FramerOption) framerOptions {
	o := framerOptions{
		maxBuffer: DefaultMaxBuffer,
		log:       logger.DefaultLogger,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewFramer returns a fresh framer for the given strategy.
func NewFramer(s Strategy, opts ...FramerOption) (Framer, error) {
	switch s {
	case StrategyLine:
		return NewLineFramer(opts...), nil
	case StrategyBrace:
		return NewBraceFramer(opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, string(s))
}

// preview shortens s for log output.
func preview(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
