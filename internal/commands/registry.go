// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Names of the built-in commands.
const (
	CmdNew     = "/new"
	CmdThreads = "/threads"
	CmdSwitch  = "/switch"
	CmdHistory = "/history"
	CmdHelp    = "/help"
	CmdQuit    = "/quit"
)

// Command is a slash command of line-mode chat.
type Command struct {
	// Name is the primary name, including the slash.
	Name string

	Aliases []string

	Description string

	// Usage shows argument syntax (e.g., "/switch ID").
	Usage string

	Args []ArgDef

	// Hidden commands are accepted but not listed.
	Hidden bool
}

// ArgDef describes one argument of a command.
type ArgDef struct {
	Name     string
	Required bool
	Type     ArgType

	// Rest marks a final argument that takes the remainder of the line.
	Rest bool
}

// ArgType selects completion behavior for an argument.
type ArgType int

const (
	ArgTypeString ArgType = iota // Free-form text
	ArgTypeThread                // A thread id
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds the known commands by name and alias.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a registry with the built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds cmd, replacing any command with the same name.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get looks a command up by name or alias. Matching ignores case.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	return r.aliases[name]
}

// All returns the commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Help formats the visible commands as an aligned list.
func (r *Registry) Help() string {
	var visible []*Command
	width := 0
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		visible = append(visible, cmd)
		width = max(width, len(cmd.Usage))
	}

	var b strings.Builder
	b.WriteString("Commands:")
	for _, cmd := range visible {
		desc := cmd.Description
		if len(cmd.Aliases) > 0 {
			desc += " (also: " + strings.Join(cmd.Aliases, ", ") + ")"
		}
		fmt.Fprintf(&b, "\n  %-*s  %s", width, cmd.Usage, desc)
	}
	return b.String()
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        CmdNew,
		Description: "start a new conversation",
		Usage:       "/new [title]",
		Args:        []ArgDef{{Name: "title", Rest: true}},
	})
	r.Register(&Command{
		Name:        CmdThreads,
		Aliases:     []string{"/ls"},
		Description: "list conversations",
		Usage:       "/threads",
	})
	r.Register(&Command{
		Name:        CmdSwitch,
		Aliases:     []string{"/open"},
		Description: "continue another conversation",
		Usage:       "/switch ID",
		Args:        []ArgDef{{Name: "ID", Required: true, Type: ArgTypeThread}},
	})
	r.Register(&Command{
		Name:        CmdHistory,
		Description: "show the current conversation",
		Usage:       "/history",
	})
	r.Register(&Command{
		Name:        CmdHelp,
		Aliases:     []string{"/?"},
		Description: "list commands",
		Usage:       "/help",
	})
	r.Register(&Command{
		Name:        CmdQuit,
		Aliases:     []string{"/exit", "/q"},
		Description: "leave, ctrl+d works too",
		Usage:       "/quit",
	})
}
