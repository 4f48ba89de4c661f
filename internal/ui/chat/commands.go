// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/npchat/internal/model"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// Command describes a slash command for help output.
type Command struct {
	Name        string
	Description string
}

// Commands lists the slash commands in help order.
var Commands = []Command{
	{"/clear", "start over from the welcome message"},
	{"/like", "toggle a thumbs-up on the last reply"},
	{"/help", "show keys and commands"},
	{"/quit", "exit"},
}

func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	name, _, _ := strings.Cut(input, " ")
	m.lastErr = nil
	m.notice = ""

	switch strings.ToLower(name) {
	case "/clear":
		if m.state == StateStreaming {
			m.notice = "stop the reply (Esc) before clearing"
			return m, nil
		}
		m.conversation.Clear()
		m.lastStats = nil
		m.updateViewport()
		m.viewport.GotoTop()

	case "/like":
		reply, ok := m.conversation.LastAssistant()
		if !ok || reply.Streaming {
			m.notice = "no reply to like yet"
			return m, nil
		}
		fb, _ := m.conversation.ToggleFeedback(reply.ID)
		if fb == model.FeedbackLiked {
			m.notice = "liked"
		} else {
			m.notice = "like removed"
		}
		m.updateViewport()

	case "/help":
		m.showHelp = !m.showHelp
		m.updateViewport()
		m.viewport.GotoTop()

	case "/quit", "/exit":
		m.cancelMgr.cancel()
		return m, tea.Quit

	default:
		m.notice = "unknown command " + name + " (try /help)"
	}
	return m, nil
}
