// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes shared by all npchat commands.
//
// STANDARDIZED PATTERN:
//   - Handlers return errors; they never print and return nil
//   - Run maps the error to an exit code and displays it once

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/npchat/internal/config"
	"github.com/jeranaias/npchat/internal/gemini"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general error, including a failed reply
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates a missing API key
	ExitAuthError = 4
	// ExitInterrupted indicates the user cancelled with Ctrl+C
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError is returned for bad command lines. Run prints the usage hint
// after the message.
type UsageError struct {
	Command string // Command being parsed ("" for global)
	Reason  string
}

func (e *UsageError) Error() string {
	if e.Command == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Reason)
}

// NewUsageError creates a new usage error.
func NewUsageError(command, format string, args ...any) error {
	return &UsageError{Command: command, Reason: fmt.Sprintf(format, args...)}
}

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "config")
	Action  string // Action being performed (e.g., "init")
	Err     error  // Underlying error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new command error.
func NewCommandError(command, action string, err error) error {
	return &CommandError{Command: command, Action: action, Err: err}
}

// ConfigError wraps a configuration load or validation failure.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode maps an error returned by a command handler to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var configErr *ConfigError
	var validateErrs config.ValidateErrors
	var validateErr config.ValidationError

	switch {
	case errors.As(err, &usageErr):
		return ExitUsageError
	case errors.Is(err, gemini.ErrNotConfigured):
		return ExitAuthError
	case errors.As(err, &configErr),
		errors.As(err, &validateErrs),
		errors.As(err, &validateErr):
		return ExitConfigError
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitGeneralError
	}
}

// DisplayError writes err to w in the CLI's error style, with a hint for
// the common failures.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())

	switch ExitCode(err) {
	case ExitUsageError:
		fmt.Fprintln(w, DimStyle.Render("Run 'npchat help' for usage."))
	case ExitAuthError:
		fmt.Fprintln(w, DimStyle.Render("Set GEMINI_API_KEY, or run 'npchat config set api.key <key>'."))
	}
}
