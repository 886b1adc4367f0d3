// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
)

// Login exchanges credentials for a bearer token. The backend expects an
// OAuth2 password form, so the email goes in the username field.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var tok Token
	err := c.do(ctx, request{
		op:     OpLogin,
		method: http.MethodPost,
		path:   "/login/access-token",
		form:   map[string]string{"username": email, "password": password},
	}, &tok)
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		// A 2xx without a token is still a failed login.
		return "", &Error{Op: OpLogin}
	}
	return tok.AccessToken, nil
}

// TestToken verifies the current token and returns its user.
func (c *Client) TestToken(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, request{
		op:     OpTestToken,
		method: http.MethodPost,
		path:   "/login/test-token",
		auth:   true,
	}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Signup registers a new account without logging in.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	var u User
	if err := c.do(ctx, request{
		op:     OpSignup,
		method: http.MethodPost,
		path:   "/users/signup",
		body:   req,
	}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
