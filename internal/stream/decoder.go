// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// CHUNK DECODER
// =============================================================================

// ChunkDecoder converts raw body chunks to text. A multi-byte character
// split across two chunks is held back until its remaining bytes arrive;
// a leading byte order mark is removed; invalid bytes become U+FFFD.
type ChunkDecoder struct {
	t     transform.Transformer
	carry []byte
	dst   []byte
}

// NewChunkDecoder creates a UTF-8 chunk decoder.
func NewChunkDecoder() *ChunkDecoder {
	return &ChunkDecoder{
		t:   unicode.UTF8BOM.NewDecoder(),
		dst: make([]byte, 4096),
	}
}

// Decode returns the text that p completes. Bytes of an unfinished
// character are kept for the next call.
func (d *ChunkDecoder) Decode(p []byte) string {
	return d.decode(p, false)
}

// Flush returns whatever is still held back, decoding an unfinished
// character as U+FFFD. The decoder is ready for a new stream afterwards.
func (d *ChunkDecoder) Flush() string {
	s := d.decode(nil, true)
	d.t.Reset()
	return s
}

func (d *ChunkDecoder) decode(p []byte, atEOF bool) string {
	if len(p) == 0 && len(d.carry) == 0 && !atEOF {
		return ""
	}

	src := make([]byte, 0, len(d.carry)+len(p))
	src = append(append(src, d.carry...), p...)
	d.carry = d.carry[:0]

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		out.Write(d.dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return out.String()
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.dst = make([]byte, len(d.dst)*2)
			}
		case errors.Is(err, transform.ErrShortSrc):
			d.carry = append(d.carry, src...)
			return out.String()
		default:
			// The UTF-8 decoder substitutes instead of failing; pass any
			// other error's input through unchanged.
			out.Write(src)
			d.t.Reset()
			return out.String()
		}
	}
}

// Pending reports how many bytes are held back.
func (d *ChunkDecoder) Pending() int {
	return len(d.carry)
}
