// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/blisspixel/deepr/jsonrpc"
	internaljson "github.com/blisspixel/deepr/internal/json"
)

// A MethodHandler implements one JSON-RPC method. The params are the
// raw JSON from the request (nil when absent); the returned value is
// marshaled into the response's result field. A returned error is
// reported to the peer as an internal error (-32603).
type MethodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Server binds JSON-RPC method names to collaborator handlers. It is
// transport-agnostic: its Handle method satisfies [MessageHandler],
// so one Server composes with a [StdioTransport], a
// [StreamableHTTPHandler], or both.
type Server struct {
	mu      sync.RWMutex
	methods map[string]MethodHandler
}

// NewServer returns a server with no registered methods.
func NewServer() *Server {
	return &Server{methods: make(map[string]MethodHandler)}
}

// RegisterMethod binds name to handler, replacing any previous
// binding. Collaborators register their methods at startup, before
// the transports start.
func (s *Server) RegisterMethod(name string, handler MethodHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[name] = handler
}

// Handle dispatches one inbound message. Unknown methods yield
// -32601. Notifications never produce a response: not for unknown
// methods, not for handler failures, not on success.
func (s *Server) Handle(ctx context.Context, msg *jsonrpc.Message) (*jsonrpc.Message, error) {
	if msg.IsResponse() {
		// Responses to server-initiated requests are a future
		// extension; inbound ones are ignored rather than answered.
		return nil, nil
	}

	s.mu.RLock()
	handler, ok := s.methods[msg.Method]
	s.mu.RUnlock()

	isNotification := msg.IsNotification()
	if !ok {
		if isNotification {
			return nil, nil
		}
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("method %q not found", msg.Method)), nil
	}

	result, err := handler(ctx, msg.Params)
	if err != nil {
		if isNotification {
			return nil, nil
		}
		return nil, err // transport maps this to -32603
	}
	if isNotification {
		return nil, nil
	}

	data, err := internaljson.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling result for %q: %w", msg.Method, err)
	}
	return jsonrpc.NewResponse(msg.ID, data), nil
}
