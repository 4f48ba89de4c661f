// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

// =============================================================================
// BRACE-COUNTED FRAMING
// =============================================================================

// BraceFramer frames bare JSON objects with no external delimiter, such as
// the elements of a streamed JSON array. It tracks brace depth and skips
// over quoted strings, so braces inside string values do not count.
//
// Scan state survives between calls: every byte is examined once even when
// an object spans many chunks. Only ASCII bytes drive the state machine, so
// multi-byte UTF-8 text passes through untouched.
type BraceFramer struct {
	buf   []byte
	pos   int // next byte to scan
	start int // offset of the pending object, -1 when none
	depth int

	inString bool
	escaped  bool

	// discarding is set while the rest of an oversized object arrives.
	// Its bytes are scanned for depth but never buffered or emitted.
	discarding bool

	opts framerOptions
}

// NewBraceFramer creates a brace-counting framer.
func NewBraceFramer(opts ...FramerOption) *BraceFramer {
	return &BraceFramer{
		buf:   make([]byte, 0, 4096),
		start: -1,
		opts:  buildFramerOptions(opts),
	}
}

// Feed implements Framer.
func (f *BraceFramer) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}
	f.buf = append(f.buf, chunk...)

	var units []string
	for ; f.pos < len(f.buf); f.pos++ {
		c := f.buf[f.pos]

		// Outside an object everything but '{' is noise: array brackets,
		// separators, whitespace, stray closing braces.
		if f.depth == 0 {
			if c == '{' {
				f.start = f.pos
				f.depth = 1
			}
			continue
		}

		if f.inString {
			switch {
			case f.escaped:
				f.escaped = false
			case c == '\\':
				f.escaped = true
			case c == '"':
				f.inString = false
			}
			continue
		}

		switch c {
		case '"':
			f.inString = true
		case '{':
			f.depth++
		case '}':
			f.depth--
			if f.depth == 0 {
				if f.discarding {
					f.discarding = false
				} else {
					units = append(units, string(f.buf[f.start:f.pos+1]))
				}
				f.start = -1
			}
		}
	}

	f.compact()
	return units
}

// compact drops everything before the pending object, or the whole buffer
// when no object is open or the open one is being discarded.
func (f *BraceFramer) compact() {
	if f.start < 0 {
		f.buf = f.buf[:0]
		f.pos = 0
		return
	}

	if f.start > 0 {
		n := copy(f.buf, f.buf[f.start:])
		f.buf = f.buf[:n]
		f.pos -= f.start
		f.start = 0
	}

	if len(f.buf) > f.opts.maxBuffer {
		f.opts.log.Warn("dropping oversized partial object",
			"bytes", len(f.buf), "limit", f.opts.maxBuffer)
		// Depth and string state stay as they are so the scan resumes
		// inside the dropped object, not at top level.
		f.buf = f.buf[:0]
		f.pos = 0
		f.start = -1
		f.discarding = true
	}
}

// Remainder implements Framer.
func (f *BraceFramer) Remainder() string {
	return string(f.buf)
}

// Depth reports the current nesting depth. Zero means no object is open.
func (f *BraceFramer) Depth() int {
	return f.depth
}
