// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"sync/atomic"
	"time"
)

// TransportStats holds monotonically increasing counters for one
// transport instance. The owning transport is the only writer; any
// goroutine may read a consistent view through Snapshot.
type TransportStats struct {
	start time.Time

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	requestsSent     atomic.Int64
	requestsReceived atomic.Int64
	bytesSent        atomic.Int64
	bytesReceived    atomic.Int64
	errors           atomic.Int64
	activeStreams    atomic.Int64
}

func newTransportStats() *TransportStats {
	return &TransportStats{start: time.Now()}
}

// StatsSnapshot is a point-in-time copy of a transport's counters.
type StatsSnapshot struct {
	MessagesSent     int64         `json:"messagesSent"`
	MessagesReceived int64         `json:"messagesReceived"`
	RequestsSent     int64         `json:"requestsSent"`
	RequestsReceived int64         `json:"requestsReceived"`
	BytesSent        int64         `json:"bytesSent"`
	BytesReceived    int64         `json:"bytesReceived"`
	Errors           int64         `json:"errors"`
	ActiveStreams    int64         `json:"activeStreams"`
	Uptime           time.Duration `json:"uptime"`
}

// Snapshot returns the current counter values. Counters are read
// individually; the snapshot is not a single atomic cut, which is
// fine for monotonic diagnostics.
func (s *TransportStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		MessagesSent:     s.messagesSent.Load(),
		MessagesReceived: s.messagesReceived.Load(),
		RequestsSent:     s.requestsSent.Load(),
		RequestsReceived: s.requestsReceived.Load(),
		BytesSent:        s.bytesSent.Load(),
		BytesReceived:    s.bytesReceived.Load(),
		Errors:           s.errors.Load(),
		ActiveStreams:    s.activeStreams.Load(),
		Uptime:           time.Since(s.start),
	}
}

// recordSent accounts for one outbound message of n bytes.
func (s *TransportStats) recordSent(n int, isRequest bool) {
	s.messagesSent.Add(1)
	s.bytesSent.Add(int64(n))
	if isRequest {
		s.requestsSent.Add(1)
	}
}

// recordReceived accounts for one inbound message of n bytes.
func (s *TransportStats) recordReceived(n int, isRequest bool) {
	s.messagesReceived.Add(1)
	s.bytesReceived.Add(int64(n))
	if isRequest {
		s.requestsReceived.Add(1)
	}
}
