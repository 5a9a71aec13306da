// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"crypto/rand"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	internaljson "github.com/blisspixel/deepr/internal/json"
	"github.com/blisspixel/deepr/jsonrpc"
)

// DefaultKeepAliveInterval is how often an idle SSE stream emits a
// keepalive comment so intermediaries don't close the connection.
const DefaultKeepAliveInterval = 30 * time.Second

// defaultQueueSize bounds each subscriber's pending-notification
// queue. A subscriber that stops reading loses pushes beyond this
// depth rather than blocking the publisher.
const defaultQueueSize = 16

// StreamableHTTPOptions configures a [StreamableHTTPHandler].
type StreamableHTTPOptions struct {
	// KeepAliveInterval is the idle keepalive period for SSE streams.
	// Zero means DefaultKeepAliveInterval.
	KeepAliveInterval time.Duration

	// QueueSize bounds each subscriber's notification queue. Zero
	// means the package default.
	QueueSize int

	// MaxBodyBytes limits POST bodies; see DefaultMaxBodyBytes for
	// the zero/negative semantics.
	MaxBodyBytes int64

	// PostLimit, when non-nil, rate-limits the POST endpoint.
	// Requests beyond the limit receive 429.
	PostLimit *rate.Limiter
}

// StreamableHTTPHandler carries JSON-RPC over a network boundary,
// split across two channels: POST for request/response exchange, and
// a long-lived SSE stream per subscriber for server-to-client pushes.
// A single endpoint tree is served:
//
//	POST <path>           message exchange (204 for notifications)
//	GET  <path>/stream    SSE push channel (?subscriber_id=<id>)
//	GET  <path>/health    status, uptime, active stream count
//
// The push channel is unordered with respect to POST: a broadcast may
// arrive before or after an in-flight request's response.
type StreamableHTTPHandler struct {
	handler MessageHandler
	opts    StreamableHTTPOptions
	stats   *TransportStats

	mu          sync.Mutex
	subscribers map[string]chan []byte
	closed      bool
	done        chan struct{}
}

// NewStreamableHTTPHandler returns a handler dispatching inbound
// messages to handler (normally [Server.Handle]).
func NewStreamableHTTPHandler(handler MessageHandler, opts *StreamableHTTPOptions) *StreamableHTTPHandler {
	h := &StreamableHTTPHandler{
		handler:     handler,
		stats:       newTransportStats(),
		subscribers: make(map[string]chan []byte),
		done:        make(chan struct{}),
	}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.KeepAliveInterval <= 0 {
		h.opts.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if h.opts.QueueSize <= 0 {
		h.opts.QueueSize = defaultQueueSize
	}
	return h
}

// Stats returns the transport's counters.
func (h *StreamableHTTPHandler) Stats() StatsSnapshot {
	return h.stats.Snapshot()
}

// Close removes every subscriber and signals their stream loops to
// exit. Idempotent. In-flight POST exchanges complete normally.
func (h *StreamableHTTPHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	h.subscribers = make(map[string]chan []byte)
}

// Broadcast pushes a notification to every live subscriber queue and
// returns the number of subscribers reached. A subscriber whose queue
// is full is skipped, not blocked on.
func (h *StreamableHTTPHandler) Broadcast(notification *jsonrpc.Message) int {
	data, err := jsonrpc.EncodeMessage(notification)
	if err != nil {
		h.stats.errors.Add(1)
		return 0
	}

	h.mu.Lock()
	queues := make([]chan []byte, 0, len(h.subscribers))
	for _, queue := range h.subscribers {
		queues = append(queues, queue)
	}
	h.mu.Unlock()

	reached := 0
	for _, queue := range queues {
		select {
		case queue <- data:
			reached++
		default:
		}
	}
	return reached
}

// SendTo pushes a notification to one subscriber, reporting whether
// the subscriber was found (a found subscriber with a full queue
// still counts as reached; the frame is dropped).
func (h *StreamableHTTPHandler) SendTo(subscriberID string, notification *jsonrpc.Message) bool {
	data, err := jsonrpc.EncodeMessage(notification)
	if err != nil {
		h.stats.errors.Add(1)
		return false
	}

	h.mu.Lock()
	queue, ok := h.subscribers[subscriberID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case queue <- data:
	default:
	}
	return true
}

// ServeHTTP routes the endpoint tree.
func (h *StreamableHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch {
	case strings.HasSuffix(req.URL.Path, "/health"):
		h.serveHealth(w, req)
	case strings.HasSuffix(req.URL.Path, "/stream"):
		h.serveStream(w, req)
	default:
		h.servePOST(w, req)
	}
}

// serveHealth reports liveness. No auth: load balancers and probes
// hit this path.
func (h *StreamableHTTPHandler) serveHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
		return
	}
	snapshot := h.stats.Snapshot()
	body, err := internaljson.Marshal(map[string]any{
		"status":        "ok",
		"uptimeSeconds": snapshot.Uptime.Seconds(),
		"activeStreams": snapshot.ActiveStreams,
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// servePOST handles one message exchange.
func (h *StreamableHTTPHandler) servePOST(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
		return
	}
	if h.opts.PostLimit != nil && !h.opts.PostLimit.Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	body := req.Body
	if limit := effectiveMaxBodyBytes(h.opts.MaxBodyBytes); limit > 0 {
		body = http.MaxBytesReader(w, body, limit)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		if isMaxBytesError(err) {
			writeRequestBodyTooLarge(w)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	msg, err := jsonrpc.DecodeMessage(data)
	if err != nil {
		h.stats.errors.Add(1)
		h.writeMessage(w, http.StatusBadRequest,
			jsonrpc.NewErrorResponse(nil, jsonrpc.CodeParseError, err.Error()))
		return
	}
	h.stats.recordReceived(len(data), msg.IsRequest())

	resp, err := h.handler(req.Context(), msg)
	if err != nil {
		h.stats.errors.Add(1)
		if msg.IsRequest() {
			h.writeMessage(w, http.StatusInternalServerError,
				jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeInternalError, err.Error()))
		} else {
			w.WriteHeader(http.StatusNoContent)
		}
		return
	}
	if resp == nil {
		// Notifications produce no body.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeMessage(w, http.StatusOK, resp)
}

func (h *StreamableHTTPHandler) writeMessage(w http.ResponseWriter, status int, msg *jsonrpc.Message) {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		h.stats.errors.Add(1)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if n, err := w.Write(data); err == nil {
		h.stats.recordSent(n, false)
	}
}

// serveStream subscribes the caller to the push channel and writes
// one SSE frame per notification until the client disconnects or the
// handler shuts down.
func (h *StreamableHTTPHandler) serveStream(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	subscriberID := req.URL.Query().Get("subscriber_id")
	if subscriberID == "" {
		subscriberID = randText()
	}

	queue := make(chan []byte, h.opts.QueueSize)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "transport closed", http.StatusGone)
		return
	}
	if _, exists := h.subscribers[subscriberID]; exists {
		h.mu.Unlock()
		http.Error(w, "subscriber_id already connected", http.StatusConflict)
		return
	}
	h.subscribers[subscriberID] = queue
	h.mu.Unlock()

	h.stats.activeStreams.Add(1)
	defer func() {
		h.stats.activeStreams.Add(-1)
		h.mu.Lock()
		delete(h.subscribers, subscriberID)
		h.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.(http.Flusher).Flush()

	keepAlive := time.NewTicker(h.opts.KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case data := <-queue:
			n, err := writeEvent(w, event{name: "message", data: data})
			if err != nil {
				// Connection closed or broken.
				return
			}
			h.stats.recordSent(n, false)
		case <-keepAlive.C:
			if err := writeKeepAlive(w); err != nil {
				return
			}
		case <-h.done:
			return
		case <-req.Context().Done():
			return
		}
	}
}

// randText returns a short random identifier for anonymous
// subscribers.
func randText() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 16)
	rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}
