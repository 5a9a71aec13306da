// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
)

// This file implements the server-sent-event wire format shared by the
// streamable HTTP handler and its client: each push is one
// "data: <json>\n\n" frame, and ": keepalive\n\n" comment frames keep
// intermediaries from closing an idle stream.

// An event is a single SSE frame.
type event struct {
	name string // the "event:" field, optional
	id   string // the "id:" field, optional
	data []byte // the "data:" field
}

// writeEvent writes one frame and flushes, so the frame is delivered
// before the next blocking wait.
func writeEvent(w io.Writer, evt event) (int, error) {
	var b bytes.Buffer
	if evt.name != "" {
		fmt.Fprintf(&b, "event: %s\n", evt.name)
	}
	if evt.id != "" {
		fmt.Fprintf(&b, "id: %s\n", evt.id)
	}
	fmt.Fprintf(&b, "data: %s\n\n", evt.data)
	n, err := w.Write(b.Bytes())
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return n, err
}

// writeKeepAlive writes a comment frame. Comment frames carry no data
// and are ignored by conforming SSE parsers.
func writeKeepAlive(w io.Writer) error {
	if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// scanEvents iterates over the SSE frames in r. Comment lines
// (keepalives) are skipped. The iteration ends with io.EOF on a clean
// stream close, or the underlying read error otherwise.
func scanEvents(r io.Reader) iter.Seq2[event, error] {
	return func(yield func(event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var evt event
		var haveData bool
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				// Blank line terminates a frame.
				if haveData {
					if !yield(evt, nil) {
						return
					}
				}
				evt = event{}
				haveData = false
			case strings.HasPrefix(line, ":"):
				// Comment (keepalive); ignore.
			case strings.HasPrefix(line, "event:"):
				evt.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "id:"):
				evt.id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
				if haveData {
					// Multi-line data concatenates with newlines.
					evt.data = append(append(evt.data, '\n'), data...)
				} else {
					evt.data = []byte(data)
				}
				haveData = true
			}
		}
		if err := scanner.Err(); err != nil {
			yield(event{}, err)
			return
		}
		yield(event{}, io.EOF)
	}
}
