// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// wrapText wraps text to maxWidth display cells. Existing line breaks are
// kept; long lines break at the last space that fits, or mid-word when
// there is none. Wide (CJK, emoji) runes count as two cells.
func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}

	var out strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out.WriteByte('\n')
		}
		for runewidth.StringWidth(line) > maxWidth {
			cut := breakPoint(line, maxWidth)
			head := strings.TrimRight(line[:cut], " ")
			rest := strings.TrimLeft(line[cut:], " ")
			if rest == "" {
				line = head
				break
			}
			out.WriteString(head)
			out.WriteByte('\n')
			line = rest
		}
		out.WriteString(line)
	}
	return out.String()
}

// breakPoint returns the byte offset at which to split a line wider than
// width. Always at least one rune, so wrapping makes progress.
func breakPoint(line string, width int) int {
	cells, lastSpace, end := 0, -1, 0
	for i, r := range line {
		w := runewidth.RuneWidth(r)
		if cells+w > width {
			if r == ' ' {
				return i
			}
			break
		}
		if r == ' ' {
			lastSpace = i
		}
		cells += w
		end = i + utf8.RuneLen(r)
	}

	switch {
	case lastSpace > 0:
		return lastSpace
	case end > 0:
		return end
	default:
		_, size := utf8.DecodeRuneInString(line)
		return size
	}
}

// contentWidth is the wrap width for a given terminal width.
func contentWidth(total, margin int) int {
	if w := total - margin; w > 3 {
		return w
	}
	return 3
}
