// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
	"time"
)

// Outcome is how a stream ended.
type Outcome int

const (
	// OutcomePending means the stream has not terminated yet.
	OutcomePending Outcome = iota
	// OutcomeCompleted means the transport reached end-of-stream.
	OutcomeCompleted
	// OutcomeCancelled means the caller cancelled the stream.
	OutcomeCancelled
	// OutcomeFailed means the stream ended with an error.
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Stats holds counters collected while a stream runs.
type Stats struct {
	StartTime      time.Time
	FirstTokenTime time.Duration // zero until a token arrives
	Duration       time.Duration // set on termination

	Chunks    int // raw chunks pulled
	Bytes     int // raw bytes pulled
	Units     int // framed units
	Malformed int // units that were not valid JSON
	Empty     int // valid units without a token
	Tokens    int // tokens yielded

	Outcome    Outcome
	StatusCode int
}

// TokensPerSecond returns the token rate over the stream duration.
func (s Stats) TokensPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Tokens) / s.Duration.Seconds()
}

// Format returns a one-line summary.
func (s Stats) Format() string {
	return fmt.Sprintf("%s | %d tokens | %.1f tok/s | TTFT %dms",
		s.Duration.Round(time.Millisecond), s.Tokens, s.TokensPerSecond(), s.FirstTokenTime.Milliseconds())
}
