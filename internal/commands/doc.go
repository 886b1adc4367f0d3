// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash commands of line-mode chat.
//
// The registry names each command once, with its aliases and arguments.
// The parser turns a typed line into a command and its arguments, and the
// completer offers command names and thread ids for tab completion.
//
// # Built-in Commands
//
//   - /new [title]: start a new conversation
//   - /threads: list conversations
//   - /switch ID: continue another conversation
//   - /history: show the current conversation
//   - /help: list commands
//   - /quit: leave
//
// # Usage
//
//	reg := commands.NewRegistry()
//	res := commands.NewParser(reg).Parse(line)
//	if res.IsCommand && res.Command == nil {
//	    // unknown command
//	}
package commands
