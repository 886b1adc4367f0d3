// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/session"
	"github.com/jeranaias/threadchat/internal/ui/app"
	"github.com/jeranaias/threadchat/internal/ui/styles"
)

// =============================================================================
// TUI
// =============================================================================

func newTUICommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the full-screen client (default)",
		Args:  cobra.NoArgs,
		RunE:  g.runTUI,
	}
}

func (g *globals) runTUI(cmd *cobra.Command, _ []string) error {
	if !isTerminal(cmd.OutOrStdout()) {
		return &CommandError{Code: ExitUsageError, Err: errNotATerminal}
	}
	return g.withEnv(func(rt *appEnv) error {
		ctx := cmd.Context()
		if rt.cfg.Session.Watch {
			// Another process logging in or out updates this one.
			w, err := session.NewWatcher(rt.sess, rt.raw.Path(), 0)
			if err != nil {
				logging.Component("cli").Warn("session watcher disabled", "error", err)
			} else if err := w.Start(ctx); err != nil {
				logging.Component("cli").Warn("session watcher disabled", "error", err)
			} else {
				defer w.Close()
			}
		}

		return app.Run(ctx, app.Options{
			Session:      rt.sess,
			Auth:         rt.client,
			Controller:   rt.controller(),
			Renderer:     rt.renderer(terminalWidth(cmd.OutOrStdout())),
			Theme:        styles.NewTheme(rt.cfg.UI.Theme),
			SidebarWidth: rt.cfg.UI.SidebarWidth,
			Server:       rt.cfg.Server.BaseURL,
		})
	})
}
