// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/chatflow"
	"github.com/jeranaias/threadchat/internal/commands"
	"github.com/jeranaias/threadchat/internal/config"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/render"
)

// =============================================================================
// ASK
// =============================================================================

// askResult is the --json payload of ask.
type askResult struct {
	ThreadID string         `json:"thread_id"`
	Created  bool           `json:"created"`
	Reply    *model.Message `json:"reply"`
}

func newAskCommand(g *globals) *cobra.Command {
	var (
		threadID string
		raw      bool
	)
	cmd := &cobra.Command{
		Use:   "ask [message...]",
		Short: "Send one message and print the reply",
		Long: `Send one message and print the reply.

Without --thread the backend starts a new conversation. Pass "-" or pipe
input to read the message from stdin.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readMessage(cmd, args)
			if err != nil {
				return err
			}
			return g.withEnv(func(rt *appEnv) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				ctx := cmd.Context()
				ctrl := rt.controller()
				if threadID != "" {
					if err := selectThread(ctx, ctrl, threadID); err != nil {
						return err
					}
				}

				out, err := ctrl.Submit(ctx, input)
				if err != nil {
					return err
				}
				if out.Created && !g.jsonOutput {
					fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render("Started conversation "+out.ThreadID))
				}
				res := askResult{ThreadID: out.ThreadID, Created: out.Created, Reply: out.Reply}
				return g.emit(cmd, res, func(w io.Writer) {
					if out.Reply == nil {
						return
					}
					if raw {
						fmt.Fprintln(w, out.Reply.Content)
						return
					}
					r := rt.renderer(terminalWidth(w))
					fmt.Fprintln(w, strings.TrimRight(r.Render(out.Reply.Content), "\n"))
				})
			})
		},
	}
	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "continue an existing conversation")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the reply without rendering")
	return cmd
}

// readMessage joins args, or reads stdin for "-" or piped input.
func readMessage(cmd *cobra.Command, args []string) (string, error) {
	in := cmd.InOrStdin()
	fromStdin := (len(args) == 1 && args[0] == "-") || (len(args) == 0 && !isTerminal(in))
	var msg string
	if fromStdin {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		msg = string(data)
	} else {
		msg = strings.Join(args, " ")
	}
	if strings.TrimSpace(msg) == "" {
		return "", &CommandError{Code: ExitUsageError, Err: chatflow.ErrEmptyInput}
	}
	return msg, nil
}

// selectThread loads the thread list and makes id the active conversation.
func selectThread(ctx context.Context, ctrl *chatflow.Controller, id string) error {
	if _, err := ctrl.LoadThreads(ctx); err != nil {
		return err
	}
	if err := ctrl.SelectThread(ctx, id); err != nil {
		if errors.Is(err, chatflow.ErrUnknownThread) {
			return &CommandError{Code: ExitNotFound, Err: fmt.Errorf("conversation %s not found", id)}
		}
		return err
	}
	return nil
}

// =============================================================================
// CHAT (line mode)
// =============================================================================

func newChatCommand(g *globals) *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Line-mode chat without the full-screen interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withEnv(func(rt *appEnv) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				ctx := cmd.Context()
				ctrl := rt.controller()
				if threadID != "" {
					if err := selectThread(ctx, ctrl, threadID); err != nil {
						return err
					}
				} else {
					if _, err := ctrl.LoadThreads(ctx); err != nil {
						logging.Component("cli").Warn("failed to load threads", "error", err)
					}
					if _, err := ctrl.NewThread(ctx, ""); err != nil {
						return err
					}
				}

				line := liner.NewLiner()
				defer line.Close()
				line.SetCtrlCAborts(true)

				if dir, err := config.ConfigDir(); err == nil {
					histPath := filepath.Join(dir, "chat_history")
					loadLineHistory(line, histPath)
					defer saveLineHistory(line, histPath)
				}

				r := newREPL(ctrl, line, cmd.OutOrStdout(), rt.renderer(terminalWidth(cmd.OutOrStdout())))
				line.SetCompleter(r.completer.Line)
				return r.run(ctx)
			})
		},
	}
	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "continue an existing conversation")
	return cmd
}

// lineReader is the part of liner.State the loop needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

type repl struct {
	ctrl      *chatflow.Controller
	in        lineReader
	out       io.Writer
	renderer  *render.Renderer
	cmds      *commands.Registry
	parser    *commands.Parser
	completer *commands.Completer
}

func newREPL(ctrl *chatflow.Controller, in lineReader, out io.Writer, r *render.Renderer) *repl {
	reg := commands.NewRegistry()
	c := commands.NewCompleter(reg)
	c.ThreadsFn = func() []commands.ThreadInfo {
		v := ctrl.Snapshot()
		infos := make([]commands.ThreadInfo, 0, len(v.Threads))
		for _, t := range v.Threads {
			infos = append(infos, commands.ThreadInfo{ID: t.ID, Title: t.DisplayTitle()})
		}
		return infos
	}
	return &repl{
		ctrl:      ctrl,
		in:        in,
		out:       out,
		renderer:  r,
		cmds:      reg,
		parser:    commands.NewParser(reg),
		completer: c,
	}
}

func (r *repl) run(ctx context.Context) error {
	r.banner()
	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := r.in.Prompt("you> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.in.AppendHistory(input)

		if res := r.parser.Parse(input); res.IsCommand {
			quit, err := r.command(ctx, res)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}
		if err := r.send(ctx, input); err != nil {
			return err
		}
	}
}

func (r *repl) banner() {
	title := model.DefaultThreadTitle
	if t := r.ctrl.Snapshot().SelectedThread(); t != nil {
		title = t.DisplayTitle()
	}
	fmt.Fprintln(r.out, TitleStyle.Render(title))
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands."))
	fmt.Fprintln(r.out)
}

// command handles a slash command. It reports whether the loop should end;
// an error is only returned when the session is gone.
func (r *repl) command(ctx context.Context, res commands.ParseResult) (bool, error) {
	if res.Command == nil {
		fmt.Fprintln(r.out, WarningStyle.Render("Unknown command "+res.CommandName+". Type /help."))
		return false, nil
	}
	if err := commands.ValidateArgs(res.Command, res.Args); err != nil {
		fmt.Fprintln(r.out, WarningStyle.Render("Usage: "+res.Command.Usage))
		return false, nil
	}

	switch res.Command.Name {
	case commands.CmdQuit:
		return true, nil
	case commands.CmdHelp:
		fmt.Fprintln(r.out, r.cmds.Help())
	case commands.CmdNew:
		t, err := r.ctrl.NewThread(ctx, res.Arg(0))
		if err != nil {
			return false, r.report(err, api.OpCreateThread.GenericMessage())
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Started "+t.DisplayTitle()+" ("+t.ID+")"))
	case commands.CmdThreads:
		v := r.ctrl.Snapshot()
		if len(v.Threads) == 0 {
			fmt.Fprintln(r.out, DimStyle.Render("No conversations"))
		}
		for _, t := range v.Threads {
			marker := "  "
			if t.ID == v.Selected {
				marker = PromptStyle.Render("> ")
			}
			fmt.Fprintln(r.out, marker+t.DisplayTitle()+" "+DimStyle.Render(t.ID))
		}
	case commands.CmdSwitch:
		id := res.Arg(0)
		if err := r.ctrl.SelectThread(ctx, id); err != nil {
			if errors.Is(err, chatflow.ErrUnknownThread) {
				fmt.Fprintln(r.out, WarningStyle.Render("No conversation "+id))
				return false, nil
			}
			return false, r.report(err, api.OpFetchHistory.GenericMessage())
		}
		r.printHistory()
	case commands.CmdHistory:
		r.printHistory()
	}
	return false, nil
}

func (r *repl) send(ctx context.Context, input string) error {
	out, err := r.ctrl.Submit(ctx, input)
	if err != nil {
		if errors.Is(err, chatflow.ErrEmptyInput) {
			return nil
		}
		msg := out.Toast
		if msg == "" {
			msg = api.Message(err)
		}
		return r.report(err, msg)
	}
	if out.Reply != nil {
		fmt.Fprintln(r.out, AssistantLabelStyle.Render(model.RoleAssistant.DisplayName()))
		fmt.Fprintln(r.out, strings.TrimRight(r.renderer.Render(out.Reply.Content), "\n"))
		fmt.Fprintln(r.out)
	}
	return nil
}

// report prints msg and ends the loop when the token was rejected.
func (r *repl) report(err error, msg string) error {
	if isUnauthorized(err) {
		return ErrNotLoggedIn
	}
	fmt.Fprintln(r.out, ErrorStyle.Render(msg))
	return nil
}

func (r *repl) printHistory() {
	v := r.ctrl.Snapshot()
	if len(v.Messages) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("No messages yet"))
		return
	}
	for _, m := range v.Messages {
		printMessage(r.out, r.renderer, m, false)
	}
}

func loadLineHistory(line *liner.State, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := line.ReadHistory(f); err != nil {
		logging.Component("cli").Debug("failed to read line history", "error", err)
	}
}

// saveLineHistory writes the prompt history owner-readable only; it may
// contain message text.
func saveLineHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		logging.Component("cli").Debug("failed to save line history", "error", err)
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}
