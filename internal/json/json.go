// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package json provides internal JSON utilities.
//
// All wire-level encoding in this repository goes through this package
// so the JSON implementation can be swapped in one place. The segmentio
// encoder is wire-compatible with encoding/json and measurably faster
// on the small envelope payloads these transports exchange.
package json

import "github.com/segmentio/encoding/json"

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
