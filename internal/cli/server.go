// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/mockapi"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/server"
)

// =============================================================================
// MOCK SERVER
// =============================================================================

type mockServerFlags struct {
	addr      string
	email     string
	password  string
	name      string
	seed      bool
	cors      bool
	rateLimit float64
}

func newMockServerCommand(g *globals) *cobra.Command {
	f := mockServerFlags{}
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory backend for local testing",
		Long: `Run an in-memory implementation of the chat API.

State lives in memory and is lost on exit. Replies echo the message back.
Point the client at the printed URL with --server or THREADCHAT_SERVER_BASE_URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend := mockapi.New()
			if f.email != "" {
				backend.AddUser(f.email, f.password, f.name)
				if f.seed {
					id := backend.AddThread(f.email, "Welcome")
					backend.AddMessage(id, model.RoleUser, "Hello")
					backend.AddMessage(id, model.RoleAssistant, mockapi.EchoReply(id, "Hello"))
				}
			}

			if !server.IsLoopback(f.addr) {
				fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Warning:")+" the mock backend accepts weak passwords; "+f.addr+" is reachable from other hosts")
			}
			cfg := server.DefaultConfig()
			cfg.Addr = f.addr
			cfg.RateLimit = f.rateLimit
			if f.cors {
				cfg.CORS = server.DefaultCORSConfig()
			}
			srv, err := server.Listen(cfg, backend.Handler())
			if err != nil {
				return &CommandError{Code: ExitGeneralError, Err: err}
			}

			base := srv.URL() + mockapi.Prefix
			if g.jsonOutput {
				if err := NewJSONResponse(cmd.CommandPath(), map[string]string{"base_url": base}).Write(cmd.OutOrStdout()); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, field("Listening", base))
				if f.email != "" {
					fmt.Fprintln(out, field("Account", f.email))
				}
				fmt.Fprintln(out, DimStyle.Render("Press Ctrl+C to stop."))
			}
			return srv.Run(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.addr, "addr", "127.0.0.1:8000", "listen address")
	flags.StringVar(&f.email, "user", "", "register an account with this email")
	flags.StringVar(&f.password, "password", "password", "password for --user")
	flags.StringVar(&f.name, "name", "", "full name for --user")
	flags.BoolVar(&f.seed, "seed", false, "give --user a sample conversation")
	flags.BoolVar(&f.cors, "cors", false, "allow browser requests from localhost origins")
	flags.Float64Var(&f.rateLimit, "rate-limit", 0, "requests per second per client (0 disables)")
	return cmd
}
