// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{"request", NewRequest(json.RawMessage(`1`), "ping", nil)},
		{"request with string id", NewRequest(json.RawMessage(`"abc"`), "search", json.RawMessage(`{"query":"web"}`))},
		{"notification", NewNotification("progress", json.RawMessage(`{"pct":50}`))},
		{"response", NewResponse(json.RawMessage(`1`), json.RawMessage(`{"pong":true}`))},
		{"error response", NewErrorResponse(json.RawMessage(`"7"`), CodeMethodNotFound, "method not found")},
		{"parse error response", NewErrorResponse(nil, CodeParseError, "parse error")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeMessage(tt.msg)
			if err != nil {
				t.Fatalf("EncodeMessage() failed: %v", err)
			}
			got, err := DecodeMessage(data)
			if err != nil {
				t.Fatalf("DecodeMessage(%s) failed: %v", data, err)
			}
			if diff := cmp.Diff(tt.msg, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeMessageErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "not json"},
		{"empty object", "{}"},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"missing version", `{"id":1,"method":"ping"}`},
		{"result and error", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`},
		{"method and result", `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`},
		{"id without method or result", `{"jsonrpc":"2.0","id":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.input))
			if err == nil {
				t.Fatalf("DecodeMessage(%q) succeeded, want error", tt.input)
			}
			var wire *WireError
			if !errors.As(err, &wire) {
				t.Fatalf("DecodeMessage(%q) error = %T, want *WireError", tt.input, err)
			}
			if wire.Code != CodeParseError {
				t.Errorf("WireError.Code = %d, want %d", wire.Code, CodeParseError)
			}
		})
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name                            string
		input                           string
		request, notification, response bool
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, true, false, false},
		{"notification", `{"jsonrpc":"2.0","method":"progress"}`, false, true, false},
		{"null id notification", `{"jsonrpc":"2.0","id":null,"method":"progress"}`, false, true, false},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{}}`, false, false, true},
		{"error response", `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeMessage(%q) failed: %v", tt.input, err)
			}
			if got := m.IsRequest(); got != tt.request {
				t.Errorf("IsRequest() = %t, want %t", got, tt.request)
			}
			if got := m.IsNotification(); got != tt.notification {
				t.Errorf("IsNotification() = %t, want %t", got, tt.notification)
			}
			if got := m.IsResponse(); got != tt.response {
				t.Errorf("IsResponse() = %t, want %t", got, tt.response)
			}
			// Exactly one classification must hold.
			n := 0
			for _, b := range []bool{m.IsRequest(), m.IsNotification(), m.IsResponse()} {
				if b {
					n++
				}
			}
			if n != 1 {
				t.Errorf("message classifies as %d shapes, want exactly 1", n)
			}
		})
	}
}

func TestResponseEchoesRawID(t *testing.T) {
	// The id token must pass through byte-for-byte, whether string or
	// number, so peers that compare ids textually still correlate.
	for _, id := range []string{`1`, `"req-00042"`, `9007199254740993`} {
		resp := NewResponse(json.RawMessage(id), json.RawMessage(`{}`))
		data, err := EncodeMessage(resp)
		if err != nil {
			t.Fatalf("EncodeMessage() failed: %v", err)
		}
		var wire struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if string(wire.ID) != id {
			t.Errorf("response id = %s, want %s", wire.ID, id)
		}
	}
}
