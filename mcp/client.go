// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/yosida95/uritemplate/v3"
	"golang.org/x/oauth2"

	"github.com/blisspixel/deepr/jsonrpc"
)

// ErrNotConnected is returned by Send and Subscribe before Connect.
var ErrNotConnected = errors.New("mcp client: not connected")

// streamTemplate expands to the SSE endpoint for a subscriber.
var streamTemplate = uritemplate.MustNew("{+endpoint}/stream{?subscriber_id}")

// StreamableClientOptions configures a [StreamableClient].
type StreamableClientOptions struct {
	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client

	// TokenSource, when non-nil, supplies bearer tokens for every
	// request (the health endpoint is never called by the client, so
	// everything it sends is authenticated).
	TokenSource oauth2.TokenSource
}

// StreamableClient talks to a [StreamableHTTPHandler] across the
// network: POST for request/response exchange, an SSE subscription
// for server pushes.
type StreamableClient struct {
	endpoint string
	opts     StreamableClientOptions

	mu        sync.Mutex
	connected bool
	notify    func(*jsonrpc.Message)
	subCancel context.CancelFunc
	subDone   chan struct{}
}

// NewStreamableClient returns a client for the POST endpoint at url.
func NewStreamableClient(url string, opts *StreamableClientOptions) *StreamableClient {
	c := &StreamableClient{endpoint: strings.TrimRight(url, "/")}
	if opts != nil {
		c.opts = *opts
	}
	return c
}

func (c *StreamableClient) httpClient() *http.Client {
	if c.opts.HTTPClient != nil {
		return c.opts.HTTPClient
	}
	return http.DefaultClient
}

// OnNotification registers the handler invoked for each pushed event
// received by Subscribe. Must be set before Subscribe.
func (c *StreamableClient) OnNotification(handler func(*jsonrpc.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = handler
}

// Connect marks the client usable. Idempotent. No network traffic is
// performed: the transport is stateless until the first Send or
// Subscribe.
func (c *StreamableClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

// Disconnect cancels the background subscription (waiting for its
// goroutine to exit) and closes idle connections. Idempotent.
func (c *StreamableClient) Disconnect() {
	c.mu.Lock()
	cancel, done := c.subCancel, c.subDone
	c.subCancel, c.subDone = nil, nil
	c.connected = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.httpClient().CloseIdleConnections()
}

// setAuth attaches a bearer token when a token source is configured.
func (c *StreamableClient) setAuth(req *http.Request) error {
	if c.opts.TokenSource == nil {
		return nil
	}
	token, err := c.opts.TokenSource.Token()
	if err != nil {
		return fmt.Errorf("fetching auth token: %w", err)
	}
	token.SetAuthHeader(req)
	return nil
}

// Send POSTs one message and returns the decoded response, or nil for
// a notification (HTTP 204). JSON-RPC error responses (including the
// 400/-32700 and 500/-32603 shapes the server emits) are returned as
// messages, not Go errors; transport failures are returned as errors.
func (c *StreamableClient) Send(ctx context.Context, msg *jsonrpc.Message) (*jsonrpc.Message, error) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if err := c.setAuth(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	decoded, decodeErr := jsonrpc.DecodeMessage(body)
	if decodeErr != nil {
		return nil, &httpStatusError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("undecodable response body: %w", decodeErr),
		}
	}
	return decoded, nil
}

// Subscribe opens the SSE push channel in a background goroutine and
// forwards each decoded event to the OnNotification handler. An empty
// subscriberID lets the server assign one. The goroutine exits
// cleanly on Disconnect or context cancellation; any other stream
// failure silently ends the loop (reconnection is a documented future
// extension, not guaranteed behavior).
func (c *StreamableClient) Subscribe(ctx context.Context, subscriberID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	if c.subDone != nil {
		return fmt.Errorf("mcp client: already subscribed")
	}
	if c.notify == nil {
		return fmt.Errorf("mcp client: no notification handler registered")
	}

	values := uritemplate.Values{"endpoint": uritemplate.String(c.endpoint)}
	if subscriberID != "" {
		values["subscriber_id"] = uritemplate.String(subscriberID)
	}
	streamURL, err := streamTemplate.Expand(values)
	if err != nil {
		return fmt.Errorf("building stream URL: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(subCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if err := c.setAuth(req); err != nil {
		cancel()
		return err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("opening stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return &httpStatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("stream endpoint refused subscription")}
	}

	done := make(chan struct{})
	c.subCancel, c.subDone = cancel, done
	notify := c.notify

	go func() {
		defer close(done)
		defer resp.Body.Close()
		for evt, err := range scanEvents(resp.Body) {
			if err != nil {
				// io.EOF on clean close; anything else ends the loop
				// silently per the transport error policy.
				return
			}
			msg, err := jsonrpc.DecodeMessage(evt.data)
			if err != nil {
				continue
			}
			notify(msg)
		}
	}()
	return nil
}

// httpStatusError wraps an error and includes an HTTP status code.
type httpStatusError struct {
	StatusCode int
	Err        error
}

func (e *httpStatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP status %d", e.StatusCode)
}

func (e *httpStatusError) Unwrap() error { return e.Err }
