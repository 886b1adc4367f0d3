// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the threadchat command tree.
//
// Commands:
//
//	threadchat                   full-screen client (same as "tui")
//	threadchat login             sign in and store the token
//	threadchat signup            create an account
//	threadchat logout            forget the stored token
//	threadchat whoami            show the signed-in account
//	threadchat threads list      list conversations, newest first
//	threadchat threads new       create a conversation
//	threadchat threads rename    change a conversation title
//	threadchat threads rm        delete a conversation
//	threadchat history ID        print the messages of a conversation
//	threadchat export ID         save a conversation as Markdown, JSON or HTML
//	threadchat ask MESSAGE       send one message and print the reply
//	threadchat chat              line-mode chat with input history
//	threadchat mock-server       serve an in-memory backend for demos
//	threadchat config show|path  inspect configuration
//	threadchat version           print build information
//
// Every command that talks to the backend accepts --json for machine
// readable output.
package cli
