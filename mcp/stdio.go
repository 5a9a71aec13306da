// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/blisspixel/deepr/jsonrpc"
)

// transportState is the stdio transport lifecycle.
type transportState int

const (
	stateIdle transportState = iota
	stateRunning
	stateStopped
)

// StdioTransport exchanges JSON-RPC messages as newline-delimited
// JSON over standard input and output. The zero value of In/Out means
// os.Stdin/os.Stdout.
//
// Lifecycle: idle until Start, running while the read loop is alive,
// stopped after Stop or end of input. A stopped transport cannot be
// restarted.
type StdioTransport struct {
	// In is the inbound message stream. If it implements io.Closer,
	// Stop closes it to unblock a pending read.
	In io.Reader

	// Out receives encoded messages, one per line.
	Out io.Writer

	// Handler receives each decoded inbound message. Must be set
	// before Start.
	Handler MessageHandler

	mu    sync.Mutex
	state transportState
	done  chan struct{}

	// writeMu serializes Send against the read loop's own error
	// responses; the reader and writers share no other mutable state
	// beyond the increment-only stats.
	writeMu sync.Mutex

	stats *TransportStats
}

// NewStdioTransport returns a transport over stdin/stdout with the
// given handler.
func NewStdioTransport(handler MessageHandler) *StdioTransport {
	return &StdioTransport{Handler: handler}
}

// Stats returns the transport's counters, valid after Start.
func (t *StdioTransport) Stats() StatsSnapshot {
	t.mu.Lock()
	stats := t.stats
	t.mu.Unlock()
	if stats == nil {
		return StatsSnapshot{}
	}
	return stats.Snapshot()
}

// Start begins the read loop in its own goroutine. Calling Start on a
// running transport is a no-op; starting a stopped transport is an
// error.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case stateRunning:
		return nil
	case stateStopped:
		return fmt.Errorf("stdio transport: already stopped")
	}
	if t.Handler == nil {
		return fmt.Errorf("stdio transport: no handler registered")
	}
	if t.In == nil {
		t.In = os.Stdin
	}
	if t.Out == nil {
		t.Out = os.Stdout
	}
	t.stats = newTransportStats()
	t.state = stateRunning
	t.done = make(chan struct{})
	go t.readLoop(ctx)
	return nil
}

// Stop terminates the read loop and waits for it to exit. Safe to
// call more than once, and a no-op on an idle transport.
func (t *StdioTransport) Stop() {
	t.mu.Lock()
	if t.state != stateRunning {
		t.mu.Unlock()
		return
	}
	// Closing the input unblocks a read in progress; the loop then
	// observes EOF and transitions to stopped.
	if closer, ok := t.In.(io.Closer); ok {
		closer.Close()
	}
	done := t.done
	t.mu.Unlock()
	<-done
}

// Done returns a channel closed when the read loop has exited.
func (t *StdioTransport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Send encodes and writes one message. Safe to call concurrently with
// the read loop; collaborators use it to push notifications while a
// request is being handled.
func (t *StdioTransport) Send(msg *jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	n, err := t.Out.Write(append(data, '\n'))
	if err != nil {
		t.stats.errors.Add(1)
		return err
	}
	t.stats.recordSent(n, msg.IsRequest())
	return nil
}

// readLoop processes one line per iteration until end of input or
// context cancellation. A malformed line produces a -32700 response
// with a null id and the loop continues; it is never aborted by a
// single bad message.
func (t *StdioTransport) readLoop(ctx context.Context) {
	defer func() {
		t.mu.Lock()
		t.state = stateStopped
		t.mu.Unlock()
		close(t.done)
	}()

	scanner := bufio.NewScanner(t.In)
	// Messages can be large (tool results with verbose output).
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg, err := jsonrpc.DecodeMessage(line)
		if err != nil {
			t.stats.errors.Add(1)
			t.Send(jsonrpc.NewErrorResponse(nil, jsonrpc.CodeParseError, err.Error()))
			continue
		}
		t.stats.recordReceived(len(line), msg.IsRequest())

		t.dispatch(ctx, msg)
	}
	// EOF or read error terminates the loop; either way the transport
	// is stopped.
}

// dispatch hands one message to the handler and writes whatever
// response results. Handler panics are contained so a buggy
// collaborator cannot kill the transport.
func (t *StdioTransport) dispatch(ctx context.Context, msg *jsonrpc.Message) {
	resp, err := t.callHandler(ctx, msg)
	if err != nil {
		t.stats.errors.Add(1)
		// Notifications never receive error responses.
		if msg.IsRequest() {
			t.Send(jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeInternalError, err.Error()))
		}
		return
	}
	if resp != nil {
		t.Send(resp)
	}
}

func (t *StdioTransport) callHandler(ctx context.Context, msg *jsonrpc.Message) (resp *jsonrpc.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return t.Handler(ctx, msg)
}
