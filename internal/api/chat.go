// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
)

// SendMessage posts a user message and returns the assistant reply. An
// empty threadID lets the backend choose or create the thread; the reply
// then carries its id.
func (c *Client) SendMessage(ctx context.Context, content, threadID string) (*ChatReply, error) {
	var reply ChatReply
	if err := c.do(ctx, request{
		op:     OpSendMessage,
		method: http.MethodPost,
		path:   "/chatbot/chat",
		body:   chatRequest{Content: content, ThreadID: threadID},
		auth:   true,
	}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// ChatHistory fetches the stored conversation for threadID.
func (c *Client) ChatHistory(ctx context.Context, threadID string) (*History, error) {
	var h History
	if err := c.do(ctx, request{
		op:     OpFetchHistory,
		method: http.MethodPost,
		path:   "/chatbot/chat-history",
		body:   historyRequest{ThreadID: threadID},
		auth:   true,
	}, &h); err != nil {
		return nil, err
	}
	if h.ThreadID == "" {
		h.ThreadID = ID(threadID)
	}
	return &h, nil
}
