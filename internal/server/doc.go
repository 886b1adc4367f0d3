// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server hosts an http.Handler behind the standard middleware stack
// and shuts it down when its context ends.
//
// It is used by the mock-server command to expose the in-memory backend on a
// real port, but any handler can be served.
//
// # Middleware
//
//   - Recovery: turns handler panics into 500 responses
//   - SecurityHeaders: nosniff, frame denial and no-store caching
//   - CORS: allowlisted origins with preflight handling
//   - RateLimit: per client IP token bucket
//
// # Usage
//
//	srv, err := server.Listen(server.Config{Addr: "127.0.0.1:8000"}, handler)
//	if err != nil {
//		return err
//	}
//	fmt.Println("listening on", srv.URL())
//	return srv.Run(ctx)
package server
