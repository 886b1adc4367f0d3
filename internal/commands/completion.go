// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"
)

// =============================================================================
// COMPLETER
// =============================================================================

// ThreadInfo is what the completer needs to know about a conversation.
type ThreadInfo struct {
	ID    string
	Title string
}

// Completion is one suggestion.
type Completion struct {
	// Value is the text that replaces the word being completed.
	Value string

	Description string

	// Score ranks suggestions, higher first.
	Score int
}

// Completer offers completions for commands and their arguments.
type Completer struct {
	registry *Registry

	// ThreadsFn supplies ids for ArgTypeThread arguments.
	ThreadsFn func() []ThreadInfo
}

// NewCompleter creates a completer over registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns suggestions for the word at the end of input.
func (c *Completer) Complete(input string) []Completion {
	input = strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	name, rest, hasSpace := strings.Cut(input, " ")
	if !hasSpace {
		return c.completeCommands(name)
	}
	cmd := c.registry.Get(name)
	if cmd == nil {
		return nil
	}

	args := splitCommandLine(rest)
	argIndex := len(args)
	partial := ""
	if len(args) > 0 && !strings.HasSuffix(rest, " ") {
		argIndex--
		partial = args[argIndex]
	}
	return c.completeArg(cmd, argIndex, partial)
}

// Line adapts Complete to a line editor: each result is the whole line
// with the last word replaced.
func (c *Completer) Line(line string) []string {
	comps := c.Complete(line)
	if len(comps) == 0 {
		return nil
	}
	head := ""
	if i := strings.LastIndex(line, " "); i >= 0 {
		head = line[:i+1]
	}
	out := make([]string, len(comps))
	for i, comp := range comps {
		out[i] = head + comp.Value
	}
	return out
}

func (c *Completer) completeCommands(partial string) []Completion {
	partial = strings.ToLower(partial)
	var comps []Completion
	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		if strings.HasPrefix(cmd.Name, partial) {
			comps = append(comps, Completion{
				Value:       cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
		for _, alias := range cmd.Aliases {
			if strings.HasPrefix(alias, partial) {
				comps = append(comps, Completion{
					Value:       alias,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10,
				})
			}
		}
	}
	sortCompletions(comps)
	return comps
}

func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}
	if cmd.Args[argIndex].Type != ArgTypeThread || c.ThreadsFn == nil {
		return nil
	}

	partial = strings.ToLower(partial)
	var comps []Completion
	for _, t := range c.ThreadsFn() {
		if strings.HasPrefix(strings.ToLower(t.ID), partial) {
			comps = append(comps, Completion{
				Value:       t.ID,
				Description: t.Title,
				Score:       calculateScore(t.ID, partial),
			})
		}
	}
	sortCompletions(comps)
	return comps
}

// =============================================================================
// HELPERS
// =============================================================================

// calculateScore favors exact and short matches.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	if value == partial {
		return 200
	}
	score := 150 + 20 - len(value)
	return score - len(value)/2
}

// sortCompletions orders by score, then alphabetically.
func sortCompletions(comps []Completion) {
	sort.SliceStable(comps, func(i, j int) bool {
		if comps[i].Score != comps[j].Score {
			return comps[i].Score > comps[j].Score
		}
		return comps[i].Value < comps[j].Value
	})
}
