// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits raw arguments into flags and positionals.
// It accepts these formats:
//   - Long flags: --flag value or --flag=value
//   - Short flags: -f value
//   - Boolean flags: --flag (no value needed)
//   - Positional arguments: anything else
//   - "--" ends flag parsing; everything after it is positional
type ArgParser struct {
	flags      map[string]string // String flags (--key=value)
	boolFlags  map[string]bool   // Boolean flags (--verbose)
	positional []string          // Positional arguments in order
	raw        []string          // Original raw arguments
}

// NewArgParser parses raw. Names listed in bools are always boolean and
// never consume the following argument, so "-v ask hi" keeps "ask" as a
// positional.
//
// Example:
//
//	p := NewArgParser([]string{"ask", "-v", "--model=gemini-2.5-pro", "hello"}, "v", "verbose")
//	p.Positional(0)       // "ask"
//	p.Flag("model")       // "gemini-2.5-pro"
//	p.BoolFlag("v")       // true
//	p.PositionalFrom(1)   // []string{"hello"}
func NewArgParser(raw []string, bools ...string) *ArgParser {
	parser := &ArgParser{
		flags:      make(map[string]string),
		boolFlags:  make(map[string]bool),
		positional: make([]string, 0, len(raw)),
		raw:        raw,
	}

	isBool := make(map[string]bool, len(bools))
	for _, b := range bools {
		isBool[b] = true
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		if arg == "--" {
			parser.positional = append(parser.positional, raw[i+1:]...)
			break
		}
		// A lone "-" is conventionally stdin; treat it as positional.
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			parser.positional = append(parser.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")

		// --flag=value
		if k, v, ok := strings.Cut(name, "="); ok {
			if b, err := ParseBoolString(v); err == nil && isBool[k] {
				parser.boolFlags[k] = b
			} else {
				parser.flags[k] = v
			}
			continue
		}

		if isBool[name] {
			parser.boolFlags[name] = true
			continue
		}

		// --flag value, unless the next arg is itself a flag.
		if i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			parser.flags[name] = raw[i+1]
			i++
			continue
		}
		parser.boolFlags[name] = true
	}

	return parser
}

// Flag returns the value of the first of names that was given.
// Returns empty string if none was given.
//
//	p.Flag("model", "m") // --model X or -m X
func (p *ArgParser) Flag(names ...string) string {
	for _, name := range names {
		if val, ok := p.flags[strings.TrimLeft(name, "-")]; ok {
			return val
		}
	}
	return ""
}

// FlagOrDefault returns the flag value or a default if not found.
func (p *ArgParser) FlagOrDefault(defaultValue string, names ...string) string {
	if val := p.Flag(names...); val != "" {
		return val
	}
	return defaultValue
}

// FlagInt returns the flag value as an integer.
func (p *ArgParser) FlagInt(names ...string) (int, error) {
	val := p.Flag(names...)
	if val == "" {
		return 0, fmt.Errorf("flag %s not found", strings.Join(names, "/"))
	}
	return strconv.Atoi(val)
}

// BoolFlag reports whether any of names was given as a boolean flag.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, name := range names {
		if val, ok := p.boolFlags[strings.TrimLeft(name, "-")]; ok {
			return val
		}
	}
	return false
}

// HasFlag returns true if the flag exists (either as string or bool flag).
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, hasString := p.flags[name]
	_, hasBool := p.boolFlags[name]
	return hasString || hasBool
}

// Positional returns the positional argument at the given index, or ""
// if index is out of bounds.
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns all positional arguments starting from index.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return []string{}
	}
	return p.positional[index:]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// Unknown returns the given flags that are not in known.
func (p *ArgParser) Unknown(known ...string) []string {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	var unknown []string
	for name := range p.flags {
		if !allowed[name] {
			unknown = append(unknown, name)
		}
	}
	for name := range p.boolFlags {
		if !allowed[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Raw returns the original raw arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// ParseBoolString parses a boolean from various string representations.
// Accepts: true/false, yes/no, y/n, 1/0, on/off (case-insensitive)
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}
