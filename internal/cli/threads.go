// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/export"
	"github.com/jeranaias/threadchat/internal/history"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/render"
	"github.com/jeranaias/threadchat/internal/threads"
	"github.com/jeranaias/threadchat/internal/util"
)

// =============================================================================
// THREADS
// =============================================================================

func newThreadsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "threads",
		Aliases: []string{"thread"},
		Short:   "Manage conversations",
	}
	cmd.AddCommand(
		newThreadsListCommand(g),
		newThreadsNewCommand(g),
		newThreadsRenameCommand(g),
		newThreadsRemoveCommand(g),
	)
	return cmd
}

func newThreadsListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withEnv(func(rt *appEnv) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				reg := threads.New(rt.client)
				if err := reg.Load(cmd.Context()); err != nil {
					return err
				}
				list := reg.Threads()
				return g.emit(cmd, list, func(w io.Writer) {
					printThreads(w, list, terminalWidth(w))
				})
			})
		},
	}
}

func printThreads(w io.Writer, list []*model.Thread, width int) {
	if len(list) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No conversations"))
		return
	}
	const idWidth = 36
	titleWidth := max(width-idWidth-20, 16)
	for _, t := range list {
		created := ""
		if t.CreatedAt != nil {
			created = t.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s  %s  %s\n",
			DimStyle.Render(fmt.Sprintf("%-*s", idWidth, t.ID)),
			ValueStyle.Render(util.TruncateWidth(t.DisplayTitle(), titleWidth)),
			DimStyle.Render(created))
	}
}

func newThreadsNewCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "new [title]",
		Short: "Create a conversation",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			if title == "" {
				title = model.DefaultThreadTitle
			}
			return g.withEnv(func(rt *appEnv) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				t, err := threads.New(rt.client).Create(cmd.Context(), title)
				if err != nil {
					return err
				}
				return g.emit(cmd, t, func(w io.Writer) {
					fmt.Fprintln(w, t.ID)
				})
			})
		},
	}
}

func newThreadsRenameCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID TITLE...",
		Short: "Change the title of a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return &CommandError{Code: ExitUsageError, Err: fmt.Errorf("title must not be empty")}
			}
			return g.withEnv(func(rt *appEnv) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				t, err := threads.New(rt.client).Rename(cmd.Context(), id, title)
				if err != nil {
					return err
				}
				return g.emit(cmd, t, func(w io.Writer) {
					fmt.Fprintln(w, SuccessStyle.Render("Renamed to "+t.Title))
				})
			})
		},
	}
}

func newThreadsRemoveCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID...",
		Aliases: []string{"delete"},
		Short:   "Delete conversations",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withEnv(func(rt *appEnv) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				deleted := make([]string, 0, len(args))
				for _, id := range args {
					if _, err := rt.client.DeleteThread(cmd.Context(), id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					if rt.cache != nil {
						_ = rt.cache.Delete(id)
					}
					deleted = append(deleted, id)
				}
				return g.emit(cmd, map[string][]string{"deleted": deleted}, func(w io.Writer) {
					for _, id := range deleted {
						fmt.Fprintln(w, SuccessStyle.Render("Deleted "+id))
					}
				})
			})
		},
	}
}

// =============================================================================
// HISTORY
// =============================================================================

func newHistoryCommand(g *globals) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "history ID",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withEnv(func(rt *appEnv) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				var src history.Source = history.NewRemoteSource(rt.client)
				if rt.cache != nil {
					src = rt.cache
				}
				msgs, err := src.Fetch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return g.emit(cmd, msgs, func(w io.Writer) {
					if len(msgs) == 0 {
						fmt.Fprintln(w, DimStyle.Render("No messages"))
						return
					}
					r := rt.renderer(terminalWidth(w))
					for _, m := range msgs {
						printMessage(w, r, m, raw)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print content without rendering")
	return cmd
}

// printMessage writes one message with its role label.
func printMessage(w io.Writer, r *render.Renderer, m model.Message, raw bool) {
	label := UserLabelStyle.Render(m.Role.DisplayName())
	if m.Role == model.RoleAssistant {
		label = AssistantLabelStyle.Render(m.Role.DisplayName())
	}
	fmt.Fprintln(w, label)

	switch {
	case raw:
		fmt.Fprintln(w, m.Content)
	case m.Role == model.RoleAssistant:
		fmt.Fprintln(w, strings.TrimRight(r.Render(m.Content), "\n"))
	default:
		fmt.Fprintln(w, r.Sanitize(m.Content))
	}
	fmt.Fprintln(w)
}

// =============================================================================
// EXPORT
// =============================================================================

func newExportCommand(g *globals) *cobra.Command {
	var (
		format string
		output string
		theme  string
		bare   bool
	)
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Save a conversation as Markdown, JSON or HTML",
		Long: `Save a conversation as Markdown, JSON or HTML.

The file is written to the --output directory under a name derived from the
title. Use --output - to print to stdout instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return &CommandError{Code: ExitUsageError, Err: err}
			}
			return g.withEnv(func(rt *appEnv) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				ctx := cmd.Context()
				thread, err := rt.client.GetThread(ctx, args[0])
				if err != nil {
					return err
				}
				var src history.Source = history.NewRemoteSource(rt.client)
				if rt.cache != nil {
					src = rt.cache
				}
				msgs, err := src.Fetch(ctx, thread.ID)
				if err != nil {
					return err
				}

				opts := export.DefaultOptions()
				opts.IncludeMetadata = !bare
				if theme != "" {
					opts.Theme = theme
				} else if rt.cfg.UI.Theme == "light" {
					opts.Theme = "light"
				}
				exp, err := export.New(f, opts)
				if err != nil {
					return err
				}
				t := &export.Transcript{Thread: thread, Messages: msgs}

				if output == "-" {
					data, err := exp.Export(t)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				path, err := export.WriteFile(t, exp, output)
				if err != nil {
					return err
				}
				return g.emit(cmd, map[string]string{"path": path, "format": string(f)}, func(w io.Writer) {
					fmt.Fprintln(w, SuccessStyle.Render("Exported to "+path))
				})
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "markdown, json or html")
	cmd.Flags().StringVarP(&output, "output", "o", ".", "output directory, or - for stdout")
	cmd.Flags().StringVar(&theme, "theme", "", "HTML theme: dark or light (default from config)")
	cmd.Flags().BoolVar(&bare, "no-metadata", false, "omit the metadata header")
	return cmd
}
