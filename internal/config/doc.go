// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for threadchat.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: where the chat backend lives and how hard to hit it
//   - StorageConfig: which local store holds the token and message cache
//   - HistoryConfig: remote or local message history
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (THREADCHAT_*), also read from ./.env
//   - ~/.threadchat/config.toml
//   - ~/.threadchat/config.json
//   - Built-in defaults
//
// THREADCHAT_HOME relocates ~/.threadchat.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	base := cfg.Server.BaseURL
package config
