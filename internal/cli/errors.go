// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/chatflow"
	"github.com/jeranaias/threadchat/internal/session"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitNetworkError = 5
	ExitNotFound     = 7
	ExitTimeout      = 8
)

// ErrNotLoggedIn is returned by commands that need a session when none is
// stored.
var ErrNotLoggedIn = errors.New("not logged in; run 'threadchat login' first")

var errNotATerminal = errors.New("the full-screen client needs a terminal; use 'threadchat chat' or 'threadchat ask' instead")

// CommandError attaches an exit code to an error.
type CommandError struct {
	Code int
	Err  error
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code
	}
	switch {
	case errors.Is(err, ErrNotLoggedIn),
		errors.Is(err, api.ErrUnauthorized),
		errors.Is(err, session.ErrMissingCredentials):
		return ExitAuthError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.Is(err, chatflow.ErrUnknownThread):
		return ExitNotFound
	case errors.Is(err, chatflow.ErrEmptyInput):
		return ExitUsageError
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 0:
			return ExitNetworkError
		case apiErr.Status == 401:
			return ExitAuthError
		case apiErr.Status == 404:
			return ExitNotFound
		}
	}
	return ExitGeneralError
}

// describe returns the text printed for a failed command. Remote errors
// include the HTTP status or transport failure.
func describe(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Describe()
	}
	return err.Error()
}

func isUnauthorized(err error) bool {
	return errors.Is(err, api.ErrUnauthorized)
}
