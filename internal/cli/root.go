// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/config"
	"github.com/jeranaias/threadchat/internal/logging"
)

// Version information, set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globals holds the persistent flags and the configuration they produce.
type globals struct {
	configPath string
	server     string
	logLevel   string
	verbose    bool
	jsonOutput bool

	cfg *config.Config
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "threadchat",
		Short: "Terminal client for a threaded chatbot service",
		Long: `threadchat talks to a chat backend that stores conversations as threads.
Run it without arguments for the full-screen client, or use the subcommands
for scripting.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: g.setup,
		RunE:              g.runTUI,
	}
	root.Version = Version
	root.SetVersionTemplate(versionString() + "\n")

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default ~/.threadchat/config.toml)")
	pf.StringVar(&g.server, "server", "", "backend base URL, e.g. http://localhost:8000/api/v1")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log to stderr instead of the log file")
	pf.BoolVar(&g.jsonOutput, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newTUICommand(g),
		newLoginCommand(g),
		newSignupCommand(g),
		newLogoutCommand(g),
		newWhoamiCommand(g),
		newThreadsCommand(g),
		newHistoryCommand(g),
		newExportCommand(g),
		newAskCommand(g),
		newChatCommand(g),
		newMockServerCommand(g),
		newConfigCommand(g),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Close()

	root := NewRootCommand()
	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		if asJSON, _ := root.PersistentFlags().GetBool("json"); asJSON {
			name := root.Name()
			if cmd != nil {
				name = cmd.CommandPath()
			}
			_ = NewJSONErrorResponse(name, err).Write(os.Stdout)
		} else {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:")+" "+describe(err))
		}
		return exitCode(err)
	}
	return ExitSuccess
}

// setup loads configuration, applies flag overrides and starts logging.
func (g *globals) setup(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFromPath(g.configPath)
		if err != nil {
			return &CommandError{Code: ExitConfigError, Err: err}
		}
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return &CommandError{Code: ExitConfigError, Err: err}
		}
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Warning:")+" "+err.Error()+" (using defaults)")
		}
	}

	if g.server != "" {
		cfg.Server.BaseURL = g.server
		if err := cfg.Validate(); err != nil {
			return &CommandError{Code: ExitUsageError, Err: err}
		}
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	config.SetGlobal(cfg)
	g.cfg = cfg

	if g.verbose {
		logging.InitWriter(cmd.ErrOrStderr(), cfg.Log.Level)
		return nil
	}
	path, err := cfg.LogPath()
	if err != nil {
		return &CommandError{Code: ExitConfigError, Err: err}
	}
	if err := logging.Init(path, cfg.Log.Level); err != nil {
		// Logging is best effort; the client still works without a file.
		fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Warning:")+" "+err.Error())
	}
	return nil
}

func versionString() string {
	if GitCommit != "unknown" && GitCommit != "" {
		return fmt.Sprintf("threadchat %s\n  commit: %s\n  built:  %s", Version, GitCommit, BuildDate)
	}
	return "threadchat " + Version
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No config or logging is needed to print the version.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
			return nil
		},
	}
}
