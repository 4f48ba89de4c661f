// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jeranaias/npchat/internal/model"
	"github.com/jeranaias/npchat/internal/stream"
)

// maxStdinPrompt caps a prompt read from stdin.
const maxStdinPrompt = 1 << 20

// HandleAsk answers a single prompt. Tokens are written to stdout as they
// arrive; stats and errors go to stderr. A transport failure exits 1,
// Ctrl+C exits 130.
func HandleAsk(ctx context.Context, a *app, args Args, stdin io.Reader, stdout, stderr io.Writer) error {
	query := args.Query
	if query == "" || query == "-" {
		data, err := io.ReadAll(io.LimitReader(stdin, maxStdinPrompt))
		if err != nil {
			return NewCommandError("ask", "read stdin", err)
		}
		query = strings.TrimSpace(string(data))
	}
	if query == "" {
		return NewUsageError("ask", "no prompt given")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return ask(ctx, a, query, args.Stats, stdout, stderr)
}

func ask(ctx context.Context, a *app, query string, showStats bool, stdout, stderr io.Writer) error {
	// No welcome turn: it would never be sent anyway.
	conv := model.NewConversation("")

	stats, err := streamReply(ctx, a.client, a.metrics, conv, query, stdout)
	if stats.Tokens > 0 {
		fmt.Fprintln(stdout)
	}
	if showStats && stats.Outcome != stream.OutcomePending {
		fmt.Fprintln(stderr, DimStyle.Render(stats.Format()))
	}

	switch {
	case err != nil:
		return err
	case stats.Outcome == stream.OutcomeCancelled:
		return context.Canceled
	case stats.Tokens == 0:
		fmt.Fprintln(stderr, WarningStyle.Render("[!] the reply was empty"))
	}
	return nil
}
