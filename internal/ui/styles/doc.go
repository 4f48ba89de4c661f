// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the npchat TUI.

All colors use Lip Gloss AdaptiveColor, so one palette serves both light
and dark terminals. NewTheme picks the variant from the configured mode;
in auto mode the terminal background is queried through termenv.

Status messages pair every color with an ASCII indicator ([OK], [X], [!])
so they stay readable without color.

# Usage

	theme := styles.NewTheme(cfg.UI.Theme)
	fmt.Println(theme.AssistantName.Render("NP Chatbot"))
	fmt.Println(styles.RenderError("request failed"))
*/
package styles
