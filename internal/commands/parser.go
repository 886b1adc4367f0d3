// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
	"unicode"
)

// =============================================================================
// PARSE RESULT
// =============================================================================

// ParseResult is the outcome of parsing one input line.
type ParseResult struct {
	// IsCommand is true if the input starts with /.
	IsCommand bool

	// Command is the matched command, nil if the name is unknown.
	Command *Command

	// CommandName is the name as typed (e.g., "/Switch").
	CommandName string

	Args []string

	// RawArgs is everything after the command name, trimmed.
	RawArgs string
}

// Arg returns the i'th argument, or "" if there is none. An argument
// marked Rest gets the remainder of the line; a single quoted word is
// unquoted.
func (r ParseResult) Arg(i int) string {
	if r.Command != nil && i < len(r.Command.Args) && r.Command.Args[i].Rest {
		if i == 0 {
			if len(r.Args) == 1 {
				return r.Args[0]
			}
			return r.RawArgs
		}
		if i < len(r.Args) {
			return strings.Join(r.Args[i:], " ")
		}
		return ""
	}
	if i < len(r.Args) {
		return r.Args[i]
	}
	return ""
}

// =============================================================================
// PARSER
// =============================================================================

// Parser matches input lines against a registry.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser over registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse parses a line. Bare "exit" and "quit" parse as /quit.
func (p *Parser) Parse(input string) ParseResult {
	input = strings.TrimSpace(input)
	if input == "exit" || input == "quit" {
		input = CmdQuit
	}
	if !IsCommand(input) {
		return ParseResult{}
	}

	res := ParseResult{IsCommand: true}
	name, rest, _ := strings.Cut(input, " ")
	res.CommandName = name
	res.RawArgs = strings.TrimSpace(rest)
	res.Args = splitCommandLine(res.RawArgs)
	res.Command = p.registry.Get(name)
	return res
}

// splitCommandLine splits a line into tokens. Single or double quotes
// group words, and a backslash escapes a quote inside quotes.
func splitCommandLine(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingle, inDouble, started bool

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			started = true
		case c == '"' && !inSingle:
			inDouble = !inDouble
			started = true
		case c == '\\' && (inSingle || inDouble) && i+1 < len(runes) &&
			(runes[i+1] == '"' || runes[i+1] == '\'' || runes[i+1] == '\\'):
			current.WriteRune(runes[i+1])
			i++
		case unicode.IsSpace(c) && !inSingle && !inDouble:
			if started {
				tokens = append(tokens, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(c)
			started = true
		}
	}
	if started {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// =============================================================================
// HELPERS
// =============================================================================

// IsCommand reports whether input is a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// ValidateArgs checks that every required argument is present.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}
	for i, def := range cmd.Args {
		if def.Required && i >= len(args) {
			return &ValidationError{Command: cmd.Name, Arg: def.Name, Usage: cmd.Usage}
		}
	}
	return nil
}

// ValidationError reports a missing required argument.
type ValidationError struct {
	Command string
	Arg     string
	Usage   string
}

func (e *ValidationError) Error() string {
	return e.Command + ": missing " + e.Arg + " (usage: " + e.Usage + ")"
}
