// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Version information (set by main at build time).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies the command to run.
type Command int

const (
	CmdTUI Command = iota // Full-screen chat (default)
	CmdChat               // Line-mode REPL
	CmdAsk                // One-shot question
	CmdConfig             // Config management
	CmdVersion
	CmdHelp
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds the parsed command line.
type Args struct {
	// Global flags
	ConfigPath  string // --config PATH
	Model       string // --model, -m
	Framing     string // --framing line|brace
	MetricsAddr string // --metrics-addr ADDR
	Verbose     bool   // --verbose, -v
	Quiet       bool   // --quiet, -q

	// ask
	Query string
	Stats bool // --stats: print stream stats to stderr

	// config
	Subcommand string
	Rest       []string // arguments after the subcommand
	Force      bool     // --force: overwrite on init
	JSON       bool     // --json: JSON output or file format

	// Err is set when the command line could not be parsed. Run reports it
	// as a usage error.
	Err error
}

// boolFlagNames never take a value.
var boolFlagNames = []string{
	"v", "verbose", "q", "quiet",
	"h", "help", "version",
	"stats", "force", "json",
}

var globalFlagNames = []string{
	"config", "model", "m", "framing", "metrics-addr",
	"v", "verbose", "q", "quiet", "h", "help", "version",
}

// commandFlags lists the extra flags each command accepts.
var commandFlags = map[Command][]string{
	CmdAsk:    {"stats"},
	CmdConfig: {"force", "json"},
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses a command line (without the program name). Global
// flags may appear before or after the command.
func ParseArgs(argv []string) (Command, Args) {
	p := NewArgParser(argv, boolFlagNames...)

	args := Args{
		ConfigPath:  p.Flag("config"),
		Model:       p.Flag("model", "m"),
		Framing:     p.Flag("framing"),
		MetricsAddr: p.Flag("metrics-addr"),
		Verbose:     p.BoolFlag("verbose", "v"),
		Quiet:       p.BoolFlag("quiet", "q"),
	}

	if p.BoolFlag("help", "h") {
		return CmdHelp, args
	}
	if p.BoolFlag("version") {
		return CmdVersion, args
	}

	var cmd Command
	name := strings.ToLower(p.Positional(0))
	switch name {
	case "", "tui":
		cmd = CmdTUI
	case "chat":
		cmd = CmdChat
	case "ask", "a":
		cmd = CmdAsk
		args.Query = strings.TrimSpace(strings.Join(p.PositionalFrom(1), " "))
		args.Stats = p.BoolFlag("stats")
	case "config", "cfg":
		cmd = CmdConfig
		args.Subcommand = strings.ToLower(p.Positional(1))
		args.Rest = p.PositionalFrom(2)
		args.Force = p.BoolFlag("force")
		args.JSON = p.BoolFlag("json")
	case "version":
		return CmdVersion, args
	case "help":
		return CmdHelp, args
	default:
		args.Err = NewUsageError("", "unknown command %q", p.Positional(0))
		return CmdHelp, args
	}

	known := append(append([]string{}, globalFlagNames...), commandFlags[cmd]...)
	if unknown := p.Unknown(known...); len(unknown) > 0 {
		args.Err = NewUsageError(cmd.String(), "unknown flag --%s", unknown[0])
	}
	if args.Verbose && args.Quiet {
		args.Err = NewUsageError("", "--verbose and --quiet are mutually exclusive")
	}
	return cmd, args
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes cmd and returns the process exit code.
func Run(cmd Command, args Args) int {
	err := run(context.Background(), cmd, args)
	if err != nil && ExitCode(err) != ExitInterrupted {
		DisplayError(os.Stderr, err)
	}
	return ExitCode(err)
}

func run(ctx context.Context, cmd Command, args Args) error {
	if args.Err != nil {
		return args.Err
	}

	switch cmd {
	case CmdHelp:
		PrintUsage(os.Stdout)
		return nil
	case CmdVersion:
		PrintVersion(os.Stdout)
		return nil
	case CmdConfig:
		return HandleConfig(os.Stdout, args)
	}

	// Without a terminal the default command answers a prompt piped on stdin.
	if cmd == CmdTUI && !IsInteractive() {
		if IsTTY() {
			return NewUsageError("tui", "stdout is not a terminal; use 'npchat ask' or 'npchat chat'")
		}
		cmd = CmdAsk
	}

	a, err := newApp(args, cmd == CmdTUI)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case CmdTUI:
		return HandleTUI(ctx, a, args)
	case CmdChat:
		if !IsTTY() {
			return NewUsageError("chat", "stdin is not a terminal; use 'npchat ask'")
		}
		return HandleChat(ctx, a, os.Stdout)
	case CmdAsk:
		return HandleAsk(ctx, a, args, os.Stdin, os.Stdout, os.Stderr)
	default:
		return NewUsageError("", "unsupported command %s", cmd)
	}
}

// =============================================================================
// USAGE
// =============================================================================

const usageText = `npchat - streaming Gemini chat for the terminal

Usage:
  npchat [flags]                 Full-screen chat (default on a terminal)
  npchat chat [flags]            Line-mode chat with input history
  npchat ask [flags] <prompt>    One-shot question; reads stdin if no prompt
  npchat config <subcommand>     Manage configuration
  npchat version                 Show version
  npchat help                    Show this help

Config subcommands:
  show [--json]                  Print the effective config (key redacted)
  path                           Print the config file path
  init [--json] [--force]        Write a default config file
  get <key>                      Print one value, e.g. stream.framing
  set <key> <value>              Change one value and save
  keys                           List settable keys

Flags:
  --config PATH                  Config file (default ~/.npchat/config.toml)
  -m, --model NAME               Gemini model to use
  --framing line|brace           Stream framing strategy
  --metrics-addr ADDR            Serve Prometheus metrics on ADDR (e.g. :9090)
  --stats                        ask: print stream stats to stderr
  -v, --verbose                  Debug logging
  -q, --quiet                    Errors only
  -h, --help                     Show this help

Environment:
  GEMINI_API_KEY, NPCHAT_API_KEY API key (NPCHAT_API_KEY wins)
  NPCHAT_MODEL, NPCHAT_BASE_URL, NPCHAT_FRAMING, NPCHAT_LOG_LEVEL
  NO_COLOR                       Disable colors
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "npchat %s\n", Version)
	fmt.Fprintf(w, "  commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  built:  %s\n", BuildDate)
}
