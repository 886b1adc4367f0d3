// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jeranaias/threadchat/internal/model"
)

// ListThreads returns the user's threads in server order.
func (c *Client) ListThreads(ctx context.Context) ([]*model.Thread, error) {
	var list wireThreadList
	if err := c.do(ctx, request{
		op:     OpListThreads,
		method: http.MethodGet,
		path:   "/threads/",
		auth:   true,
	}, &list); err != nil {
		return nil, err
	}

	threads := make([]*model.Thread, 0, len(list.Data))
	for _, w := range list.Data {
		if w.ID == "" {
			continue
		}
		threads = append(threads, w.toModel())
	}
	return threads, nil
}

// GetThread fetches one thread.
func (c *Client) GetThread(ctx context.Context, id string) (*model.Thread, error) {
	var w wireThread
	if err := c.do(ctx, request{
		op:     OpGetThread,
		method: http.MethodGet,
		path:   "/threads/" + url.PathEscape(id),
		auth:   true,
	}, &w); err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

// CreateThread creates a thread with title.
func (c *Client) CreateThread(ctx context.Context, title string) (*model.Thread, error) {
	var w wireThread
	if err := c.do(ctx, request{
		op:     OpCreateThread,
		method: http.MethodPost,
		path:   "/threads/",
		body:   threadTitle{Title: title},
		auth:   true,
	}, &w); err != nil {
		return nil, err
	}
	t := w.toModel()
	if t.Title == "" {
		t.Title = title
	}
	return t, nil
}

// UpdateThread renames a thread.
func (c *Client) UpdateThread(ctx context.Context, id, title string) (*model.Thread, error) {
	var w wireThread
	if err := c.do(ctx, request{
		op:     OpUpdateThread,
		method: http.MethodPut,
		path:   "/threads/" + url.PathEscape(id),
		body:   threadTitle{Title: title},
		auth:   true,
	}, &w); err != nil {
		return nil, err
	}
	t := w.toModel()
	if t.ID == "" {
		t.ID = id
	}
	if t.Title == "" {
		t.Title = title
	}
	return t, nil
}

// DeleteThread deletes a thread and returns the server's confirmation text.
func (c *Client) DeleteThread(ctx context.Context, id string) (string, error) {
	var res deleteResponse
	if err := c.do(ctx, request{
		op:     OpDeleteThread,
		method: http.MethodDelete,
		path:   "/threads/" + url.PathEscape(id),
		auth:   true,
	}, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}
