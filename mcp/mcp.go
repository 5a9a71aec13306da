// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package mcp implements the deepr service's Model Context Protocol
// boundary: a newline-delimited JSON-RPC transport over stdio, a
// streamable HTTP transport (POST exchange plus a server-sent-event
// push channel), the method dispatch server both transports feed, and
// the sampling primitives used to ask the connected human for input
// the server cannot obtain on its own.
//
// Research logic, job persistence, and provider integrations are
// external collaborators: they register method handlers on [Server]
// and receive pushed notifications; the transports have no knowledge
// of them.
package mcp

import (
	"context"

	"github.com/blisspixel/deepr/jsonrpc"
)

// A MessageHandler consumes one inbound message and returns the
// response to write back, or nil for messages that produce none
// (notifications). Transports call the handler sequentially, in
// arrival order, from their own read loop.
//
// A returned error is a handler failure: the transport reports it as
// a JSON-RPC internal error (-32603) when the inbound message carried
// an id, and swallows it for notifications.
type MessageHandler func(ctx context.Context, msg *jsonrpc.Message) (*jsonrpc.Message, error)
