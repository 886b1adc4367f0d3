// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/api"
)

// =============================================================================
// LOGIN / SIGNUP
// =============================================================================

type credentialFlags struct {
	email         string
	passwordStdin bool
}

// read fills in missing credentials from the command's input.
func (f *credentialFlags) read(cmd *cobra.Command) (email, password string, err error) {
	p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	email = strings.TrimSpace(f.email)
	if email == "" {
		if email, err = p.line("Email: "); err != nil {
			return "", "", fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(email)
	}
	prompt := "Password: "
	if f.passwordStdin {
		prompt = ""
	}
	if password, err = p.secret(prompt); err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	return email, password, nil
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "account email")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from stdin without prompting")
}

func newLoginCommand(g *globals) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, password, err := creds.read(cmd)
			if err != nil {
				return err
			}
			return g.withEnv(func(rt *appEnv) error {
				if err := rt.sess.Login(cmd.Context(), rt.client, email, password); err != nil {
					return err
				}
				return g.emit(cmd, map[string]string{"email": email}, func(w io.Writer) {
					fmt.Fprintln(w, SuccessStyle.Render("Logged in as "+email))
				})
			})
		},
	}
	creds.bind(cmd)
	return cmd
}

func newSignupCommand(g *globals) *cobra.Command {
	var (
		creds    credentialFlags
		fullName string
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, password, err := creds.read(cmd)
			if err != nil {
				return err
			}
			return g.withEnv(func(rt *appEnv) error {
				u, err := rt.client.Signup(cmd.Context(), api.SignupRequest{
					Email:    email,
					Password: password,
					FullName: fullName,
				})
				if err != nil {
					return err
				}
				return g.emit(cmd, u, func(w io.Writer) {
					fmt.Fprintln(w, SuccessStyle.Render("Created account "+u.Email))
					fmt.Fprintln(w, DimStyle.Render("Run 'threadchat login' to sign in."))
				})
			})
		},
	}
	creds.bind(cmd)
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	return cmd
}

// =============================================================================
// LOGOUT / WHOAMI
// =============================================================================

func newLogoutCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withEnv(func(rt *appEnv) error {
				wasIn := rt.sess.IsAuthenticated()
				if err := rt.sess.Logout(); err != nil {
					return err
				}
				return g.emit(cmd, map[string]bool{"was_logged_in": wasIn}, func(w io.Writer) {
					if wasIn {
						fmt.Fprintln(w, SuccessStyle.Render("Logged out"))
					} else {
						fmt.Fprintln(w, DimStyle.Render("Not logged in"))
					}
				})
			})
		},
	}
}

func newWhoamiCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withEnv(func(rt *appEnv) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				u, err := rt.client.TestToken(cmd.Context())
				if err != nil {
					// A rejected token is cleared so the next run asks to log in.
					if rt.sess.IsAuthenticated() && isUnauthorized(err) {
						_ = rt.sess.Logout()
					}
					return err
				}
				return g.emit(cmd, u, func(w io.Writer) {
					fmt.Fprintln(w, field("Email", u.Email))
					if u.FullName != "" {
						fmt.Fprintln(w, field("Name", u.FullName))
					}
					fmt.Fprintln(w, field("Server", rt.cfg.Server.BaseURL))
				})
			})
		},
	}
}
