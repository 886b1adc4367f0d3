// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/chatflow"
	"github.com/jeranaias/threadchat/internal/config"
	"github.com/jeranaias/threadchat/internal/history"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/render"
	"github.com/jeranaias/threadchat/internal/secret"
	"github.com/jeranaias/threadchat/internal/session"
	"github.com/jeranaias/threadchat/internal/storage"
)

// Files next to the state store that hold the sealing key material.
const (
	keyFileName  = "state.key"
	saltFileName = "state.salt"
)

// appEnv is the wired client shared by the commands.
type appEnv struct {
	cfg    *config.Config
	kv     storage.Store
	raw    storage.Store
	sess   *session.Store
	client *api.Client
	cache  *history.CacheSource
}

// open builds the store, session and remote client from the loaded config.
func (g *globals) open() (*appEnv, error) {
	cfg := g.cfg
	if cfg == nil {
		cfg = config.Global()
	}

	path, err := cfg.StoragePath()
	if err != nil {
		return nil, &CommandError{Code: ExitConfigError, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	raw, err := storage.Open(cfg.Storage.Backend, path)
	if err != nil {
		return nil, err
	}

	kv := raw
	if cfg.Storage.Encrypt {
		sealer, err := openSealer(cfg, filepath.Dir(path))
		if err != nil {
			raw.Close()
			return nil, err
		}
		kv = storage.NewSealed(raw, sealer)
	}

	sess := session.New(kv, cfg.Session.TokenKey)
	if err := sess.Init(); err != nil {
		logging.Component("cli").Warn("failed to read session", "error", err)
	}

	client := api.NewClient(cfg.Server.BaseURL, sess).
		WithUserAgent(cfg.Server.UserAgent).
		WithLogger(logging.Component("api"))
	if cfg.Server.TimeoutSecs > 0 {
		client = client.WithTimeout(time.Duration(cfg.Server.TimeoutSecs) * time.Second)
	}
	if cfg.Server.RateLimit > 0 {
		client = client.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}

	rt := &appEnv{cfg: cfg, kv: kv, raw: raw, sess: sess, client: client}
	if cfg.History.Source == config.HistoryLocal {
		rt.cache = history.NewCacheSource(kv)
	}
	return rt, nil
}

// openSealer prefers a passphrase and falls back to a generated key file.
func openSealer(cfg *config.Config, dir string) (*secret.Sealer, error) {
	if cfg.Storage.Passphrase != "" {
		s, err := secret.FromPassphrase(cfg.Storage.Passphrase, filepath.Join(dir, saltFileName))
		if err != nil {
			return nil, fmt.Errorf("failed to derive storage key: %w", err)
		}
		return s, nil
	}
	s, err := secret.FromKeyFile(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to load storage key: %w", err)
	}
	return s, nil
}

// Close releases the store.
func (rt *appEnv) Close() error {
	return rt.raw.Close()
}

// requireSession fails with ErrNotLoggedIn when no token is stored.
func (rt *appEnv) requireSession() error {
	if !rt.sess.IsAuthenticated() {
		return ErrNotLoggedIn
	}
	return nil
}

// controller builds the chat flow over the environment's client.
func (rt *appEnv) controller() *chatflow.Controller {
	return chatflow.New(rt.client, rt.sess, rt.cache)
}

// renderer builds a message renderer for line-mode output of width columns.
func (rt *appEnv) renderer(width int) *render.Renderer {
	opts := render.DefaultOptions()
	opts.Width = width
	opts.Style = rt.cfg.UI.Theme
	opts.Markdown = rt.cfg.UI.Markdown
	opts.Highlight = rt.cfg.UI.Highlight
	return render.New(opts)
}

// withEnv opens the environment for the duration of fn.
func (g *globals) withEnv(fn func(rt *appEnv) error) error {
	rt, err := g.open()
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

// emit prints data as JSON under --json and calls human otherwise.
func (g *globals) emit(cmd *cobra.Command, data any, human func(w io.Writer)) error {
	if g.jsonOutput {
		return NewJSONResponse(cmd.CommandPath(), data).Write(cmd.OutOrStdout())
	}
	human(cmd.OutOrStdout())
	return nil
}
