// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/config"
)

// =============================================================================
// CONFIG
// =============================================================================

func newConfigCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return g.emit(cmd, g.cfg, func(w io.Writer) {
					fmt.Fprint(w, g.cfg.String())
				})
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config, state and log locations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				paths, err := configPaths(g)
				if err != nil {
					return &CommandError{Code: ExitConfigError, Err: err}
				}
				return g.emit(cmd, paths, func(w io.Writer) {
					fmt.Fprintln(w, field("Config", paths["config"]))
					fmt.Fprintln(w, field("State", paths["state"]))
					fmt.Fprintln(w, field("Log", paths["log"]))
				})
			},
		},
	)
	return cmd
}

func configPaths(g *globals) (map[string]string, error) {
	cfgPath := g.configPath
	if cfgPath == "" {
		p, err := config.ConfigPathTOML()
		if err != nil {
			return nil, err
		}
		cfgPath = p
	}
	state, err := g.cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	logPath, err := g.cfg.LogPath()
	if err != nil {
		return nil, err
	}
	if g.verbose {
		logPath = "stderr"
	}
	return map[string]string{
		"config": cfgPath,
		"state":  state,
		"log":    strings.TrimSpace(logPath),
	}, nil
}
