// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat REPL.
//
// USABILITY: Input history with arrow keys (liner), Ctrl+C stops the
// reply being streamed, Ctrl+C or Ctrl+D at the prompt exits.
//
// Slash commands:
//
//	/clear          Start over (keeps the welcome message)
//	/like           Like or unlike the last reply
//	/stats          Show stats for the last reply
//	/help           Show commands
//	/quit, /exit    Leave

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/jeranaias/npchat/internal/config"
	"github.com/jeranaias/npchat/internal/logger"
	"github.com/jeranaias/npchat/internal/metrics"
	"github.com/jeranaias/npchat/internal/model"
	"github.com/jeranaias/npchat/internal/stream"
	"github.com/jeranaias/npchat/internal/ui/chat"
)

// historyFileName is the REPL input history file inside the config dir.
const historyFileName = "chat_history"

// =============================================================================
// LINE EDITING
// =============================================================================

// ChatCLI provides input history and line editing for the REPL.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor and loads history from historyFile.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return c
}

// ReadInput reads a line of input. The prompt must be plain text; liner
// rejects escape sequences.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history.
// SECURITY: The file is created 0600; prompts can contain private text.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		logger.Warn("could not save chat history", "path", c.historyFile, "error", err)
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

func historyPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, historyFileName)
}

// =============================================================================
// SESSION
// =============================================================================

// chatSession is the REPL state that outlives a single reply.
type chatSession struct {
	client  chat.Streamer
	metrics *metrics.Metrics
	conv    *model.Conversation
	botName string
	out     io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc // cancels the reply being streamed

	lastStats *stream.Stats
}

func newChatSession(a *app, out io.Writer) *chatSession {
	return &chatSession{
		client:  a.client,
		metrics: a.metrics,
		conv:    model.NewConversation(a.cfg.Chat.WelcomeMessage),
		botName: a.cfg.Chat.BotName,
		out:     out,
	}
}

func (s *chatSession) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// cancelReply stops the reply being streamed. It reports false when no
// reply is in flight. Safe to call from the signal goroutine.
func (s *chatSession) cancelReply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

func (s *chatSession) printWelcome() {
	for _, msg := range s.conv.History() {
		fmt.Fprintf(s.out, "%s%s\n", BotStyle.Render(s.botName+": "), msg.Text)
	}
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands. Ctrl+C stops a reply; Ctrl+D exits."))
	fmt.Fprintln(s.out)
}

// send streams the reply to text. Failures are returned for display; a
// cancelled reply is not an error.
func (s *chatSession) send(ctx context.Context, text string) error {
	ctx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	fmt.Fprint(s.out, BotStyle.Render(s.botName+": "))
	stats, err := streamReply(ctx, s.client, s.metrics, s.conv, text, s.out)
	fmt.Fprintln(s.out)

	if stats.Outcome != stream.OutcomePending {
		s.lastStats = &stats
	}

	switch {
	case err != nil:
		return err
	case stats.Outcome == stream.OutcomeCancelled:
		fmt.Fprintln(s.out, WarningStyle.Render("[reply stopped]"))
	case stats.Tokens == 0:
		fmt.Fprintln(s.out, WarningStyle.Render("[!] the reply was empty"))
	}
	return nil
}

// handleCommand runs a slash command and reports whether to quit.
func (s *chatSession) handleCommand(input string) bool {
	name := strings.ToLower(strings.Fields(input)[0])

	switch name {
	case "/quit", "/exit", "/q":
		return true

	case "/clear", "/c":
		s.conv.Clear()
		s.lastStats = nil
		fmt.Fprintln(s.out, SuccessStyle.Render("[OK]")+" conversation cleared")

	case "/like":
		reply, ok := s.conv.LastAssistant()
		if !ok {
			fmt.Fprintln(s.out, WarningStyle.Render("no reply to like yet"))
			break
		}
		fb, _ := s.conv.ToggleFeedback(reply.ID)
		if fb == model.FeedbackLiked {
			fmt.Fprintln(s.out, SuccessStyle.Render("[+1]")+" liked")
		} else {
			fmt.Fprintln(s.out, "like removed")
		}

	case "/stats":
		if s.lastStats == nil {
			fmt.Fprintln(s.out, DimStyle.Render("no replies yet"))
			break
		}
		fmt.Fprintf(s.out, "%s %s\n", s.lastStats.Outcome, s.lastStats.Format())

	case "/help", "/h", "/?":
		fmt.Fprintln(s.out, TitleStyle.Render("Commands"))
		for _, c := range []struct{ name, desc string }{
			{"/clear", "Start over"},
			{"/like", "Like or unlike the last reply"},
			{"/stats", "Show stats for the last reply"},
			{"/help", "Show this help"},
			{"/quit", "Leave"},
		} {
			fmt.Fprintf(s.out, "  %-8s %s\n", c.name, c.desc)
		}

	default:
		fmt.Fprintf(s.out, "%s unknown command %s (try /help)\n", WarningStyle.Render("[!]"), name)
	}
	return false
}

// =============================================================================
// REPL
// =============================================================================

// HandleChat runs the line-mode REPL until the user quits.
func HandleChat(ctx context.Context, a *app, out io.Writer) error {
	input := NewChatCLI(historyPath())
	defer input.Close()

	session := newChatSession(a, out)
	session.printWelcome()

	// While a reply streams the terminal is in cooked mode, so Ctrl+C
	// arrives as SIGINT. At the prompt liner sees it as a key instead.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer func() {
		signal.Stop(sigs)
		close(sigs)
	}()
	go func() {
		for range sigs {
			session.cancelReply()
		}
	}()

	for {
		line, err := input.ReadInput("you> ")
		if err != nil {
			// liner.ErrPromptAborted (Ctrl+C) or io.EOF (Ctrl+D)
			fmt.Fprintln(out)
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if session.handleCommand(line) {
				return nil
			}
			continue
		}

		if err := session.send(ctx, line); err != nil {
			DisplayError(out, err)
		}
		fmt.Fprintln(out)
	}
}
