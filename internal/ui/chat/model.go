// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/npchat/internal/logger"
	"github.com/jeranaias/npchat/internal/metrics"
	"github.com/jeranaias/npchat/internal/model"
	"github.com/jeranaias/npchat/internal/stream"
	"github.com/jeranaias/npchat/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Receiving a reply
)

// Streamer starts reply streams. *gemini.Client implements it.
type Streamer interface {
	StartStream(ctx context.Context, history []model.Message) (*stream.Sequencer, error)
	Model() string
}

// Options configures a chat Model.
type Options struct {
	Client       Streamer
	Conversation *model.Conversation
	Theme        *styles.Theme
	Metrics      *metrics.Metrics // nil disables metrics
	BotName      string
	MaxFPS       int
	WordWrap     bool
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	state State
	theme *styles.Theme
	keys  KeyMap

	// Dimensions
	width  int
	height int

	conversation *model.Conversation
	client       Streamer
	metrics      *metrics.Metrics
	botName      string
	wordWrap     bool

	// Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Current stream
	streamingMsgID  string
	streamingBuffer *StreamingBuffer
	cancelMgr       *cancelManager // pointer: shared across model copies

	// Status line
	lastStats *stream.Stats
	lastErr   error
	notice    string
	showHelp  bool
}

// New creates a chat model.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(styles.ModeAuto)
	}
	conv := opts.Conversation
	if conv == nil {
		conv = model.NewConversation("")
	}
	botName := opts.BotName
	if botName == "" {
		botName = "Assistant"
	}

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = "> "
	input.PromptStyle = theme.InputPrompt
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	m := Model{
		state:           StateReady,
		theme:           theme,
		keys:            DefaultKeyMap(),
		width:           80,
		height:          24,
		conversation:    conv,
		client:          opts.Client,
		metrics:         opts.Metrics,
		botName:         botName,
		wordWrap:        opts.WordWrap,
		viewport:        viewport.New(80, 24),
		input:           input,
		spinner:         sp,
		streamingBuffer: NewStreamingBuffer(opts.MaxFPS),
		cancelMgr:       newCancelManager(),
	}
	m.layout()
	m.updateViewport()
	return m
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.updateViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamTickMsg:
		return m.handleStreamTick()

	case StreamCompleteMsg:
		return m.handleStreamComplete(msg)

	case ClientUpdatedMsg:
		if msg.Client != nil {
			m.client = msg.Client
			m.notice = "config reloaded"
		}
		return m, nil

	case ConfigErrorMsg:
		m.lastErr = msg.Error
		return m, nil

	case spinner.TickMsg:
		if m.state != StateStreaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// State returns the current chat state.
func (m Model) State() State {
	return m.state
}

// Conversation returns the conversation shown by the view.
func (m Model) Conversation() *model.Conversation {
	return m.conversation
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancelMgr.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.state == StateStreaming && m.cancelMgr.cancel() {
			m.notice = "stopping reply..."
		}
		if m.showHelp {
			m.showHelp = false
			m.updateViewport()
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if strings.HasPrefix(text, "/") {
			m.input.Reset()
			return m.handleCommand(text)
		}
		if m.state == StateStreaming {
			m.notice = "wait for the reply to finish, or press Esc"
			return m, nil
		}
		m.input.Reset()
		return m.submit(text)

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// STREAMING
// =============================================================================

// submit adds the user turn and starts the reply stream.
func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	m.lastErr = nil
	m.notice = ""

	if m.client == nil {
		m.lastErr = errors.New("no API client configured")
		return m, nil
	}

	m.conversation.AddUser(text)
	reply := m.conversation.StartAssistant()

	ctx, cancel := context.WithCancel(context.Background())
	seq, err := m.client.StartStream(ctx, m.conversation.History())
	if err != nil {
		cancel()
		m.conversation.Discard(reply.ID)
		m.lastErr = err
		m.updateViewport()
		return m, nil
	}

	m.state = StateStreaming
	m.streamingMsgID = reply.ID
	m.streamingBuffer.Reset()
	m.cancelMgr.set(cancel)
	m.updateViewport()
	m.viewport.GotoBottom()

	done := m.metrics.Track(m.client.Model())
	return m, tea.Batch(
		m.spinner.Tick,
		streamTickCmd(m.streamingBuffer.Interval()),
		pumpStream(ctx, seq, m.streamingBuffer, reply.ID, done),
	)
}

// pumpStream pulls tokens into buf until the stream ends. It owns seq and
// never touches the model.
func pumpStream(ctx context.Context, seq *stream.Sequencer, buf *StreamingBuffer, id string, done func(stream.Stats)) tea.Cmd {
	return func() tea.Msg {
		defer seq.Close()

		var streamErr error
		for {
			token, err := seq.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					streamErr = err
				}
				break
			}
			buf.Write(token)
		}

		stats := seq.Stats()
		done(stats)
		return StreamCompleteMsg{MessageID: id, Stats: stats, Error: streamErr}
	}
}

func (m Model) handleStreamTick() (tea.Model, tea.Cmd) {
	if m.state != StateStreaming {
		return m, nil
	}

	if content, ok := m.streamingBuffer.Flush(); ok {
		m.conversation.AppendToken(m.streamingMsgID, content)
		m.updateViewport()
		m.viewport.GotoBottom()
	}
	return m, streamTickCmd(m.streamingBuffer.Interval())
}

func (m Model) handleStreamComplete(msg StreamCompleteMsg) (tea.Model, tea.Cmd) {
	if msg.MessageID != m.streamingMsgID {
		return m, nil
	}

	if content, ok := m.streamingBuffer.ForceFlush(); ok {
		m.conversation.AppendToken(msg.MessageID, content)
	}

	reply, _ := m.conversation.Get(msg.MessageID)
	hasText := reply.Text != ""

	switch msg.Stats.Outcome {
	case stream.OutcomeCompleted:
		if hasText {
			m.conversation.Finish(msg.MessageID)
		} else {
			m.conversation.Discard(msg.MessageID)
			m.notice = "the reply was empty"
		}
	default:
		if hasText {
			m.conversation.Interrupt(msg.MessageID)
		} else {
			m.conversation.Discard(msg.MessageID)
		}
		if msg.Stats.Outcome == stream.OutcomeCancelled {
			m.notice = "reply stopped"
		}
	}

	m.lastErr = msg.Error
	stats := msg.Stats
	m.lastStats = &stats

	logger.Debug("reply finished",
		"outcome", stats.Outcome.String(),
		"tokens", stats.Tokens,
		"duration", stats.Duration)

	m.state = StateReady
	m.streamingMsgID = ""
	m.cancelMgr.cancel()
	m.updateViewport()
	m.viewport.GotoBottom()
	return m, nil
}

// =============================================================================
// LAYOUT
// =============================================================================

// chromeHeight is the number of lines used by header, status and input.
const chromeHeight = 5

func (m *Model) layout() {
	h := m.height - chromeHeight
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.Width = m.width - promptWidth - 1
}

// promptWidth is the display width of the input prompt.
const promptWidth = 2

func (m *Model) updateViewport() {
	m.viewport.SetContent(m.renderMessages())
}
