// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/npchat/internal/config"
	"github.com/jeranaias/npchat/internal/gemini"
	"github.com/jeranaias/npchat/internal/logger"
	"github.com/jeranaias/npchat/internal/metrics"
	"github.com/jeranaias/npchat/internal/model"
	"github.com/jeranaias/npchat/internal/stream"
	"github.com/jeranaias/npchat/internal/ui/chat"
)

const testKey = "AIza-test-0123456789abcdefghijklmnopqrstu"

// =============================================================================
// TEST HELPERS
// =============================================================================

// isolate points the config dir at a temp HOME and clears env overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, name := range []string{
		"GEMINI_API_KEY", "NPCHAT_API_KEY", "NPCHAT_MODEL",
		"NPCHAT_BASE_URL", "NPCHAT_FRAMING", "NPCHAT_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
	return home
}

func sse(tokens ...string) string {
	var b strings.Builder
	for _, tok := range tokens {
		text, _ := json.Marshal(tok)
		b.WriteString(`data: {"candidates":[{"content":{"parts":[{"text":` + string(text) + `}]}}]}` + "\n\n")
	}
	return b.String()
}

// replyServer answers every request with body as an SSE stream.
func replyServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// stallServer sends one token, then holds the stream open until the
// client goes away.
func stallServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sse(token)))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, baseURL string) *app {
	t.Helper()
	cfg := config.Default()
	cfg.API.Key = testKey
	cfg.API.BaseURL = baseURL
	cfg.API.Model = "gemini-test"

	client, err := NewClientFromConfig(cfg)
	require.NoError(t, err)
	client.WithLogger(logger.Discard())
	return &app{cfg: cfg, client: client}
}

// cancelOnWrite calls fn the first time trigger is written.
type cancelOnWrite struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	trigger string
	fn      func()
	once    sync.Once
}

func (w *cancelOnWrite) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf.Write(p)
	w.mu.Unlock()
	if strings.Contains(string(p), w.trigger) {
		w.once.Do(w.fn)
	}
	return len(p), nil
}

func (w *cancelOnWrite) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// =============================================================================
// PARSING
// =============================================================================

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name  string
		argv  []string
		cmd   Command
		check func(t *testing.T, a Args)
	}{
		{
			name: "no args is tui",
			argv: nil,
			cmd:  CmdTUI,
		},
		{
			name: "ask joins prompt",
			argv: []string{"ask", "what", "is", "go?", "--stats"},
			cmd:  CmdAsk,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "what is go?", a.Query)
				assert.True(t, a.Stats)
			},
		},
		{
			name: "global flags anywhere",
			argv: []string{"-v", "chat", "--model", "gemini-2.5-pro", "--framing=brace", "--metrics-addr", ":9090"},
			cmd:  CmdChat,
			check: func(t *testing.T, a Args) {
				assert.True(t, a.Verbose)
				assert.Equal(t, "gemini-2.5-pro", a.Model)
				assert.Equal(t, "brace", a.Framing)
				assert.Equal(t, ":9090", a.MetricsAddr)
				assert.NoError(t, a.Err)
			},
		},
		{
			name: "config set",
			argv: []string{"config", "set", "chat.bot_name", "Helper", "Bot", "--config", "/tmp/x.toml"},
			cmd:  CmdConfig,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "set", a.Subcommand)
				assert.Equal(t, []string{"chat.bot_name", "Helper", "Bot"}, a.Rest)
				assert.Equal(t, "/tmp/x.toml", a.ConfigPath)
			},
		},
		{
			name: "help flag wins",
			argv: []string{"ask", "hi", "-h"},
			cmd:  CmdHelp,
		},
		{
			name: "version",
			argv: []string{"--version"},
			cmd:  CmdVersion,
		},
		{
			name: "unknown command",
			argv: []string{"frobnicate"},
			cmd:  CmdHelp,
			check: func(t *testing.T, a Args) {
				require.Error(t, a.Err)
				assert.Equal(t, ExitUsageError, ExitCode(a.Err))
			},
		},
		{
			name: "command flag on wrong command",
			argv: []string{"chat", "--stats"},
			cmd:  CmdChat,
			check: func(t *testing.T, a Args) {
				require.Error(t, a.Err)
				assert.Contains(t, a.Err.Error(), "--stats")
			},
		},
		{
			name: "verbose and quiet conflict",
			argv: []string{"ask", "-v", "-q", "hi"},
			cmd:  CmdAsk,
			check: func(t *testing.T, a Args) {
				assert.Error(t, a.Err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := ParseArgs(tt.argv)
			assert.Equal(t, tt.cmd, cmd)
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

func TestRun_UsageErrorExitCode(t *testing.T) {
	_, args := ParseArgs([]string{"nope"})
	err := run(context.Background(), CmdHelp, args)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", NewUsageError("ask", "no prompt"), ExitUsageError},
		{"not configured", fmt.Errorf("start: %w", gemini.ErrNotConfigured), ExitAuthError},
		{"config", &ConfigError{Path: "x", Err: errors.New("bad")}, ExitConfigError},
		{"validation", config.ValidateErrors{{Field: "api.model", Message: "empty"}}, ExitConfigError},
		{"cancelled", context.Canceled, ExitInterrupted},
		{"transport", &stream.TransportError{StatusCode: 500}, ExitGeneralError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestDisplayError_Hints(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, gemini.ErrNotConfigured)
	assert.Contains(t, buf.String(), "GEMINI_API_KEY")

	buf.Reset()
	DisplayError(&buf, NewUsageError("", "bad"))
	assert.Contains(t, buf.String(), "npchat help")

	buf.Reset()
	DisplayError(&buf, nil)
	assert.Empty(t, buf.String())
}

// =============================================================================
// APP WIRING
// =============================================================================

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "npchat.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api]\nmodel = \"from-file\"\n"), 0600))

	cfg, got, err := loadConfig(Args{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, "from-file", cfg.API.Model)

	cfg, _, err = loadConfig(Args{ConfigPath: path, Model: "from-flag", Framing: "brace"})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.API.Model)
	assert.Equal(t, "brace", cfg.Stream.Framing)

	_, _, err = loadConfig(Args{ConfigPath: path, Framing: "xml"})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, _, err := loadConfig(Args{ConfigPath: filepath.Join(t.TempDir(), "nope.toml")})
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.API.Key = testKey
	cfg.API.Model = "gemini-2.5-pro"
	cfg.Stream.Framing = "brace"

	client, err := NewClientFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", client.Model())
	assert.Equal(t, stream.StrategyBrace, client.Strategy())
	assert.True(t, client.IsConfigured())

	cfg.Stream.Framing = "xml"
	_, err = NewClientFromConfig(cfg)
	assert.ErrorIs(t, err, stream.ErrUnknownStrategy)

	_, err = NewClientFromConfig(nil)
	assert.Error(t, err)
}

func TestNewApp_RequiresKey(t *testing.T) {
	isolate(t)
	_, err := newApp(Args{}, false)
	assert.ErrorIs(t, err, gemini.ErrNotConfigured)
	assert.Equal(t, ExitAuthError, ExitCode(err))
}

func TestNewApp_MetricsExporter(t *testing.T) {
	isolate(t)
	t.Setenv("NPCHAT_API_KEY", testKey)

	a, err := newApp(Args{MetricsAddr: "127.0.0.1:0"}, false)
	require.NoError(t, err)
	require.NotNil(t, a.metrics)

	addr := a.exporter.Addr()
	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	a.Close()
	_, err = http.Get("http://" + addr + "/health")
	assert.Error(t, err)
}

func TestSetupLogging_File(t *testing.T) {
	t.Cleanup(func() { logger.SetLevel(slog.LevelWarn) })

	cfg := config.Default()
	cfg.Log.File = filepath.Join(t.TempDir(), "npchat.log")
	cfg.Log.Level = "info"

	closeLog, err := setupLogging(cfg, Args{Verbose: true}, false)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, logger.Level())

	logger.Debug("written to file", "k", "v")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(cfg.Log.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestSetupLogging_QuietNoFile(t *testing.T) {
	t.Cleanup(func() { logger.SetLevel(slog.LevelWarn) })

	closeLog, err := setupLogging(config.Default(), Args{Quiet: true}, false)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, logger.Level())
	assert.NoError(t, closeLog())
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_StreamsReply(t *testing.T) {
	srv := replyServer(t, sse("Hel", "lo", " wörld"))
	a := newTestApp(t, srv.URL)
	a.metrics = metrics.New()

	var stdout, stderr bytes.Buffer
	err := HandleAsk(context.Background(), a, Args{Query: "Say hello", Stats: true}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "Hello wörld\n", stdout.String())
	assert.Contains(t, stderr.String(), "3 tokens")

	n, err := testutil.GatherAndCount(a.metrics.Registry(), "npchat_streams_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAsk_ReadsStdin(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		got = buf.Bytes()
		_, _ = w.Write([]byte(sse("ok")))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	err := HandleAsk(context.Background(), newTestApp(t, srv.URL), Args{}, strings.NewReader("  piped prompt\n"), &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", stdout.String())
	assert.Contains(t, string(got), `"piped prompt"`)
	assert.NotContains(t, string(got), gemini.DefaultWelcome)
}

func TestAsk_EmptyPrompt(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := HandleAsk(context.Background(), newTestApp(t, "http://127.0.0.1:1"), Args{}, strings.NewReader("  "), &stdout, &stderr)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestAsk_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	err := HandleAsk(context.Background(), newTestApp(t, srv.URL), Args{Query: "hi"}, nil, &stdout, &stderr)
	require.Error(t, err)
	assert.True(t, stream.IsTransportError(err))
	assert.Equal(t, ExitGeneralError, ExitCode(err))
	assert.Empty(t, stdout.String())
}

func TestAsk_EmptyReply(t *testing.T) {
	srv := replyServer(t, sse(""))
	var stdout, stderr bytes.Buffer
	err := HandleAsk(context.Background(), newTestApp(t, srv.URL), Args{Query: "hi"}, nil, &stdout, &stderr)
	require.NoError(t, err)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "empty")
}

func TestAsk_Cancelled(t *testing.T) {
	srv := replyServer(t, sse("never"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	err := HandleAsk(ctx, newTestApp(t, srv.URL), Args{Query: "hi"}, nil, &stdout, &stderr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ExitInterrupted, ExitCode(err))
	assert.Empty(t, stdout.String())
}

// =============================================================================
// CHAT SESSION
// =============================================================================

func TestChatSession_Send(t *testing.T) {
	srv := replyServer(t, sse("Hi", " there"))
	var out bytes.Buffer
	s := newChatSession(newTestApp(t, srv.URL), &out)

	require.NoError(t, s.send(context.Background(), "hello"))
	assert.Contains(t, out.String(), gemini.DefaultBotName+": ")
	assert.Contains(t, out.String(), "Hi there")

	history := s.conv.History()
	require.Len(t, history, 3)
	assert.True(t, history[0].Scripted)
	assert.Equal(t, "Hi there", history[2].Text)
	assert.False(t, history[2].Streaming)
	require.NotNil(t, s.lastStats)
	assert.Equal(t, stream.OutcomeCompleted, s.lastStats.Outcome)
	assert.False(t, s.cancelReply(), "no reply should be in flight")
}

func TestChatSession_CancelKeepsPartialReply(t *testing.T) {
	srv := stallServer(t, "Partial")
	s := newChatSession(newTestApp(t, srv.URL), nil)
	w := &cancelOnWrite{trigger: "Partial", fn: func() { s.cancelReply() }}
	s.out = w

	require.NoError(t, s.send(context.Background(), "hello"))
	assert.Contains(t, w.String(), "[reply stopped]")

	reply, ok := s.conv.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "Partial", reply.Text)
	assert.True(t, reply.Interrupted)
	assert.Equal(t, stream.OutcomeCancelled, s.lastStats.Outcome)
}

func TestChatSession_TransportErrorDiscardsReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var out bytes.Buffer
	s := newChatSession(newTestApp(t, srv.URL), &out)
	err := s.send(context.Background(), "hello")
	assert.True(t, stream.IsTransportError(err))

	_, ok := s.conv.LastAssistant()
	assert.False(t, ok)
	assert.Equal(t, 2, s.conv.Len(), "welcome and user turn remain")
}

func TestChatSession_Commands(t *testing.T) {
	srv := replyServer(t, sse("Sure"))
	var out bytes.Buffer
	s := newChatSession(newTestApp(t, srv.URL), &out)

	assert.False(t, s.handleCommand("/like"))
	assert.Contains(t, out.String(), "no reply to like yet")

	assert.False(t, s.handleCommand("/stats"))
	assert.Contains(t, out.String(), "no replies yet")

	require.NoError(t, s.send(context.Background(), "help me"))

	out.Reset()
	assert.False(t, s.handleCommand("/like"))
	assert.Contains(t, out.String(), "liked")
	reply, _ := s.conv.LastAssistant()
	assert.Equal(t, model.FeedbackLiked, reply.Feedback)

	out.Reset()
	assert.False(t, s.handleCommand("/stats"))
	assert.Contains(t, out.String(), "completed")

	out.Reset()
	assert.False(t, s.handleCommand("/like"))
	assert.Contains(t, out.String(), "like removed")

	assert.False(t, s.handleCommand("/clear"))
	assert.Equal(t, 1, s.conv.Len())
	assert.Nil(t, s.lastStats)

	out.Reset()
	assert.False(t, s.handleCommand("/bogus arg"))
	assert.Contains(t, out.String(), "unknown command /bogus")

	assert.False(t, s.handleCommand("/help"))
	assert.True(t, s.handleCommand("/quit"))
	assert.True(t, s.handleCommand("/EXIT"))
}

func TestChatSession_Welcome(t *testing.T) {
	var out bytes.Buffer
	s := newChatSession(newTestApp(t, "http://127.0.0.1:1"), &out)
	s.printWelcome()
	assert.Contains(t, out.String(), gemini.DefaultWelcome)
}

// =============================================================================
// TUI RELOAD
// =============================================================================

func TestReloadMsg(t *testing.T) {
	msg := reloadMsg(nil, errors.New("bad toml"), Args{})
	errMsg, ok := msg.(chat.ConfigErrorMsg)
	require.True(t, ok)
	assert.Contains(t, errMsg.Error.Error(), "bad toml")

	cfg := config.Default()
	cfg.API.Key = testKey
	cfg.API.Model = "from-file"
	msg = reloadMsg(cfg, nil, Args{Model: "from-flag"})
	updated, ok := msg.(chat.ClientUpdatedMsg)
	require.True(t, ok)
	assert.Equal(t, "from-flag", updated.Client.Model())

	msg = reloadMsg(config.Default(), nil, Args{Framing: "xml"})
	_, ok = msg.(chat.ConfigErrorMsg)
	assert.True(t, ok)
}

// =============================================================================
// CONFIG COMMAND
// =============================================================================

func runConfig(t *testing.T, argv ...string) (string, error) {
	t.Helper()
	cmd, args := ParseArgs(append([]string{"config"}, argv...))
	require.Equal(t, CmdConfig, cmd)
	require.NoError(t, args.Err)
	var out bytes.Buffer
	err := HandleConfig(&out, args)
	return out.String(), err
}

func TestConfigCommand_InitSetGet(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".npchat", "config.toml")

	out, err := runConfig(t, "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	_, err = runConfig(t, "init")
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = runConfig(t, "init")
	assert.Equal(t, ExitUsageError, ExitCode(err))
	_, err = runConfig(t, "init", "--force")
	require.NoError(t, err)

	_, err = runConfig(t, "set", "chat.bot_name", "Helper", "Bot")
	require.NoError(t, err)
	out, err = runConfig(t, "get", "chat.bot_name")
	require.NoError(t, err)
	assert.Equal(t, "Helper Bot\n", out)

	_, err = runConfig(t, "set", "ui.max_fps", "500")
	assert.Equal(t, ExitConfigError, ExitCode(err))
	_, err = runConfig(t, "set", "nope.key", "1")
	assert.Equal(t, ExitUsageError, ExitCode(err))
	_, err = runConfig(t, "get")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestConfigCommand_KeyIsRedacted(t *testing.T) {
	isolate(t)

	out, err := runConfig(t, "set", "api.key", testKey)
	require.NoError(t, err)
	assert.NotContains(t, out, testKey)

	out, err = runConfig(t, "get", "api.key")
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]\n", out)

	out, err = runConfig(t, "show")
	require.NoError(t, err)
	assert.NotContains(t, out, testKey)
	assert.Contains(t, out, "stream.framing")

	out, err = runConfig(t, "show", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, testKey)
	assert.Contains(t, out, `"framing": "line"`)
}

func TestConfigCommand_SetDoesNotPersistEnv(t *testing.T) {
	home := isolate(t)
	t.Setenv("GEMINI_API_KEY", testKey)
	t.Setenv("NPCHAT_MODEL", "env-model")

	_, err := runConfig(t, "set", "chat.temperature", "0")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(home, ".npchat", "config.toml"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), testKey)
	assert.NotContains(t, string(data), "env-model")
	assert.Contains(t, string(data), "temperature = 0.0")
}

func TestConfigCommand_JSON(t *testing.T) {
	home := isolate(t)

	_, err := runConfig(t, "init", "--json")
	require.NoError(t, err)
	path := filepath.Join(home, ".npchat", "config.json")
	assert.FileExists(t, path)

	out, err := runConfig(t, "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out, "JSON is used when no TOML file exists")

	_, err = runConfig(t, "set", "stream.framing", "brace")
	require.NoError(t, err)
	out, err = runConfig(t, "get", "stream.framing")
	require.NoError(t, err)
	assert.Equal(t, "brace\n", out)
}

func TestConfigCommand_Keys(t *testing.T) {
	out, err := runConfig(t, "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "api.model\n")
	assert.Contains(t, out, "stream.token_path\n")

	_, err = runConfig(t, "frob")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}
