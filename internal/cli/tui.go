// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/npchat/internal/config"
	"github.com/jeranaias/npchat/internal/logger"
	"github.com/jeranaias/npchat/internal/model"
	"github.com/jeranaias/npchat/internal/ui/chat"
	"github.com/jeranaias/npchat/internal/ui/styles"
)

// HandleTUI runs the full-screen chat. Edits to the config file are picked
// up while it runs and apply from the next reply on.
func HandleTUI(ctx context.Context, a *app, args Args) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := chat.New(chat.Options{
		Client:       a.client,
		Conversation: model.NewConversation(a.cfg.Chat.WelcomeMessage),
		Theme:        styles.NewTheme(a.cfg.UI.Theme),
		Metrics:      a.metrics,
		BotName:      a.cfg.Chat.BotName,
		MaxFPS:       a.cfg.UI.MaxFPS,
		WordWrap:     a.cfg.UI.WordWrap,
	})

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if a.configPath != "" {
		go func() {
			err := config.Watch(ctx, a.configPath, func(cfg *config.Config, err error) {
				p.Send(reloadMsg(cfg, err, args))
			})
			if err != nil {
				logger.Warn("config watch disabled", "error", err)
			}
		}()
	}

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// reloadMsg turns a config reload into the message the chat view expects.
// Command-line overrides still win over the edited file.
func reloadMsg(cfg *config.Config, err error, args Args) tea.Msg {
	if err != nil {
		return chat.ConfigErrorMsg{Error: fmt.Errorf("config reload: %w", err)}
	}
	if err := applyFlags(cfg, args); err != nil {
		return chat.ConfigErrorMsg{Error: fmt.Errorf("config reload: %w", err)}
	}
	client, err := NewClientFromConfig(cfg)
	if err != nil {
		return chat.ConfigErrorMsg{Error: fmt.Errorf("config reload: %w", err)}
	}
	return chat.ClientUpdatedMsg{Client: client}
}
