// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/npchat/internal/config"
)

// HandleConfig handles "npchat config <subcommand>".
func HandleConfig(out io.Writer, args Args) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(out, args)
	case "path":
		return configPath(out, args)
	case "init":
		return configInit(out, args)
	case "get":
		return configGet(out, args)
	case "set":
		return configSet(out, args)
	case "keys":
		for _, k := range config.Keys() {
			fmt.Fprintln(out, k)
		}
		return nil
	default:
		return NewUsageError("config", "unknown subcommand %q", args.Subcommand)
	}
}

// targetPath is the file config commands read and write: --config, or
// the file Load would use.
func targetPath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	if args.JSON && args.Subcommand == "init" {
		return config.ConfigPathJSON()
	}
	if p := activeConfigPath(); p != "" {
		return p, nil
	}
	return "", errors.New("cannot determine config directory")
}

// configShow prints the effective config: file, environment and flags.
// SECURITY: Output is always redacted.
func configShow(out io.Writer, args Args) error {
	cfg, path, err := loadConfig(args)
	if err != nil {
		return err
	}
	safe := cfg.Redacted()

	if args.JSON {
		fmt.Fprintln(out, safe.String())
		return nil
	}

	fmt.Fprintln(out, TitleStyle.Render("npchat configuration"))
	fmt.Fprintln(out, DimStyle.Render(path))
	fmt.Fprintln(out)
	for _, key := range config.Keys() {
		v, err := safe.Get(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", LabelStyle.Render(key), ValueStyle.Render(formatValue(v)))
	}
	return nil
}

func configPath(out io.Writer, args Args) error {
	path, err := targetPath(args)
	if err != nil {
		return NewCommandError("config", "path", err)
	}
	fmt.Fprintln(out, path)
	return nil
}

// configInit writes a default config file. The API key is left out so
// that it keeps coming from the environment.
func configInit(out io.Writer, args Args) error {
	path, err := targetPath(args)
	if err != nil {
		return NewCommandError("config", "init", err)
	}
	if _, err := os.Stat(path); err == nil && !args.Force {
		return NewUsageError("config", "%s already exists (use --force to overwrite)", path)
	}

	if err := saveFile(config.Default(), path); err != nil {
		return NewCommandError("config", "init", err)
	}
	fmt.Fprintf(out, "%s wrote %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

func configGet(out io.Writer, args Args) error {
	if len(args.Rest) != 1 {
		return NewUsageError("config", "usage: config get <key>")
	}
	cfg, _, err := loadConfig(args)
	if err != nil {
		return err
	}
	v, err := cfg.Redacted().Get(args.Rest[0])
	if err != nil {
		return NewUsageError("config", "%v", err)
	}
	fmt.Fprintln(out, formatValue(v))
	return nil
}

// configSet changes one key in the config file. Only the file's own
// contents are read, so environment overrides are never persisted.
func configSet(out io.Writer, args Args) error {
	if len(args.Rest) < 2 {
		return NewUsageError("config", "usage: config set <key> <value>")
	}
	key := args.Rest[0]
	value := strings.Join(args.Rest[1:], " ")

	path, err := targetPath(args)
	if err != nil {
		return NewCommandError("config", "set", err)
	}

	cfg, err := loadFile(path)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := cfg.Set(key, value); err != nil {
		return NewUsageError("config", "%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := saveFile(cfg, path); err != nil {
		return NewCommandError("config", "set", err)
	}

	shown := value
	if strings.EqualFold(key, "api.key") {
		shown = "[REDACTED]"
	}
	fmt.Fprintf(out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, shown)
	return nil
}

// loadFile reads only path onto the defaults. A missing file yields the
// defaults.
func loadFile(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	var err error
	if isJSON(path) {
		err = config.LoadJSON(cfg, path)
	} else {
		err = config.LoadTOML(cfg, path)
	}
	return cfg, err
}

func saveFile(cfg *config.Config, path string) error {
	if isJSON(path) {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

func isJSON(path string) bool {
	return strings.HasSuffix(path, ".json")
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		if s == "" {
			return `""`
		}
		return strings.ReplaceAll(s, "\n", `\n`)
	}
	return fmt.Sprint(v)
}
