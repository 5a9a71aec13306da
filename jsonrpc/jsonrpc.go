// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc implements the JSON-RPC 2.0 message envelope shared
// by the stdio and streamable HTTP transports.
//
// A Message is exactly one of three things:
//
//   - a request: method and id both set
//   - a notification: method set, id absent
//   - a response: result or error set, id set
//
// DecodeMessage rejects envelopes that fit none of these shapes, so
// code downstream of a successful decode can rely on the
// classification helpers without re-validating.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	internaljson "github.com/blisspixel/deepr/internal/json"
)

// Version is the protocol version carried by every message.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ID is an opaque request correlation token. JSON-RPC allows string or
// number ids; we carry the raw bytes through unchanged so a response
// echoes exactly what the request sent. A nil ID means "absent"
// (notification); the literal null is also treated as absent, matching
// the null-id parse-error responses a peer may send.
type ID = json.RawMessage

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is a JSON-RPC 2.0 envelope: request, notification, or
// response. Params, Result, and the ID are held as raw JSON so the
// codec round-trips payloads byte-for-byte.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// A WireError is a failure to decode bytes into a valid Message. It
// maps to the JSON-RPC parse-error code (-32700).
type WireError struct {
	// Code is always CodeParseError; carried so transports can build
	// an error response without re-mapping.
	Code int
	err  error
}

func (e *WireError) Error() string {
	return fmt.Sprintf("parse error: %v", e.err)
}

func (e *WireError) Unwrap() error { return e.err }

// NewRequest returns a request message. The id must be non-nil; params
// may be nil for parameterless methods.
func NewRequest(id ID, method string, params json.RawMessage) *Message {
	return &Message{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// NewNotification returns a notification message (no id, no response
// expected).
func NewNotification(method string, params json.RawMessage) *Message {
	return &Message{JSONRPC: Version, Method: method, Params: params}
}

// NewResponse returns a successful response echoing id.
func NewResponse(id ID, result json.RawMessage) *Message {
	if result == nil {
		// A response must carry a result member even when the handler
		// produced nothing.
		result = json.RawMessage("null")
	}
	return &Message{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse returns an error response echoing id. A nil id is
// rendered as the JSON null, as required for parse errors where the
// request id is unknown.
func NewErrorResponse(id ID, code int, message string) *Message {
	if id == nil {
		id = json.RawMessage("null")
	}
	return &Message{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}}
}

// hasID reports whether the message carries a usable id. The JSON
// null counts as absent.
func (m *Message) hasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
}

// IsRequest reports whether m is a request: method and id both set.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.hasID()
}

// IsNotification reports whether m is a notification: method set, id
// absent.
func (m *Message) IsNotification() bool {
	return m.Method != "" && !m.hasID()
}

// IsResponse reports whether m is a response: result or error set,
// and no method. Parse-error responses carry a null id and still
// classify as responses.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (m.Result != nil || m.Error != nil)
}

// EncodeMessage marshals m to its wire form. The version field is
// stamped if the caller left it empty.
func EncodeMessage(m *Message) ([]byte, error) {
	if m.JSONRPC == "" {
		m.JSONRPC = Version
	}
	return internaljson.Marshal(m)
}

// DecodeMessage parses one message from data. Malformed JSON, a wrong
// version, or an envelope that is neither request, notification, nor
// response yields a *WireError.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := internaljson.Unmarshal(data, &m); err != nil {
		return nil, &WireError{Code: CodeParseError, err: err}
	}
	if m.JSONRPC != Version {
		return nil, &WireError{Code: CodeParseError, err: fmt.Errorf("unsupported jsonrpc version %q", m.JSONRPC)}
	}
	if m.Result != nil && m.Error != nil {
		return nil, &WireError{Code: CodeParseError, err: fmt.Errorf("message has both result and error")}
	}
	if m.Method != "" && (m.Result != nil || m.Error != nil) {
		return nil, &WireError{Code: CodeParseError, err: fmt.Errorf("message has both method and result/error")}
	}
	if !m.IsRequest() && !m.IsNotification() && !m.IsResponse() {
		return nil, &WireError{Code: CodeParseError, err: fmt.Errorf("message is neither request, notification, nor response")}
	}
	return &m, nil
}
