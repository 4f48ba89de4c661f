// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"strings"
)

// =============================================================================
// LINE-DELIMITED (SSE) FRAMING
// =============================================================================

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// LineFramer frames Server-Sent Events. Each "data:" line carries one
// complete JSON document; every other line is discarded.
type LineFramer struct {
	buf  []byte
	opts framerOptions

	// skipping is set after an oversized partial line is dropped; input is
	// ignored up to and including the next newline.
	skipping bool
}

// NewLineFramer creates a line-delimited framer.
func NewLineFramer(opts ...FramerOption) *LineFramer {
	return &LineFramer{
		buf:  make([]byte, 0, 4096),
		opts: buildFramerOptions(opts),
	}
}

// Feed implements Framer.
func (f *LineFramer) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}
	f.buf = append(f.buf, chunk...)

	start := 0
	if f.skipping {
		nl := bytes.IndexByte(f.buf, '\n')
		if nl < 0 {
			f.buf = f.buf[:0]
			return nil
		}
		start = nl + 1
		f.skipping = false
	}

	var units []string
	for {
		nl := bytes.IndexByte(f.buf[start:], '\n')
		if nl < 0 {
			break
		}
		line := f.buf[start : start+nl]
		start += nl + 1

		if unit, ok := parseDataLine(line); ok {
			units = append(units, unit)
		}
	}

	// Keep only the trailing partial line.
	if start > 0 {
		n := copy(f.buf, f.buf[start:])
		f.buf = f.buf[:n]
	}

	if len(f.buf) > f.opts.maxBuffer {
		f.opts.log.Warn("dropping oversized partial line",
			"bytes", len(f.buf), "limit", f.opts.maxBuffer)
		f.buf = f.buf[:0]
		f.skipping = true
	}

	return units
}

// Remainder implements Framer.
func (f *LineFramer) Remainder() string {
	return string(f.buf)
}

// parseDataLine returns the payload of a "data:" line. Lines without the
// prefix, empty payloads and the [DONE] sentinel carry no unit.
func parseDataLine(line []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(line))
	if !strings.HasPrefix(trimmed, dataPrefix) {
		return "", false
	}
	payload := strings.TrimSpace(trimmed[len(dataPrefix):])
	if payload == "" || payload == doneSentinel {
		return "", false
	}
	return payload, true
}
