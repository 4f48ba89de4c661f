// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
)

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"fits", "hello", 10, "hello"},
		{"break at space", "hello world foo", 11, "hello world\nfoo"},
		{"long word", "abcdefghij", 4, "abcd\nefgh\nij"},
		{"keeps newlines", "ab\ncd", 10, "ab\ncd"},
		{"wide runes", "日本語テキスト", 6, "日本語\nテキス\nト"},
		{"wide rune wider than width", "日本", 1, "日\n本"},
		{"zero width disables", "hello world", 0, "hello world"},
		{"trailing spaces dropped", "aaa     bbb", 4, "aaa\nbbb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrapText(tt.text, tt.width))
		})
	}
}

func TestWrapText_LinesFit(t *testing.T) {
	text := "Streaming 👋 replies mix ASCII, ünïcödé and 中文字符 in one paragraph that is long."
	for width := 2; width < 40; width++ {
		for _, line := range strings.Split(wrapText(text, width), "\n") {
			assert.LessOrEqual(t, runewidth.StringWidth(line), width, "width %d: %q", width, line)
		}
	}
}

func TestContentWidth(t *testing.T) {
	assert.Equal(t, 76, contentWidth(80, 4))
	assert.Equal(t, 3, contentWidth(5, 4))
}
