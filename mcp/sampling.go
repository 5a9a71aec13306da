// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/json"
	"fmt"

	internaljson "github.com/blisspixel/deepr/internal/json"
)

// SamplingMethod is the JSON-RPC method for server-initiated
// "ask the human" requests.
const SamplingMethod = "sampling/createMessage"

// SamplingReason classifies why the server needs human input.
type SamplingReason string

const (
	ReasonCaptcha       SamplingReason = "CAPTCHA"
	ReasonPaywall       SamplingReason = "PAYWALL"
	ReasonLoginRequired SamplingReason = "LOGIN_REQUIRED"
	ReasonRateLimited   SamplingReason = "RATE_LIMITED"
	ReasonConfirmation  SamplingReason = "CONFIRMATION"
)

// defaultMaxResponseTokens caps the human's reply size when the
// caller gives no hint.
const defaultMaxResponseTokens = 1000

// A SamplingRequest asks the connected human, via the client
// application, for input the research agent cannot obtain on its own:
// a CAPTCHA solution, a paywall decision, a go-ahead confirmation.
// Transient; build one per interaction with a factory and render it
// with WireParams.
type SamplingRequest struct {
	Reason SamplingReason `json:"reason"`
	Prompt string         `json:"prompt"`
	URL    string         `json:"url,omitempty"`

	// Context carries free-form extra detail the client may surface
	// alongside the prompt.
	Context map[string]any `json:"context,omitempty"`

	// MaxResponseTokens hints how large a reply is useful. Zero means
	// the package default.
	MaxResponseTokens int64 `json:"maxResponseTokens,omitempty"`
}

// A SamplingResponse is the human's reply.
type SamplingResponse struct {
	Content  string         `json:"content"`
	Approved bool           `json:"approved"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewCaptchaRequest asks the human to solve a CAPTCHA blocking url.
func NewCaptchaRequest(url string) *SamplingRequest {
	return &SamplingRequest{
		Reason: ReasonCaptcha,
		URL:    url,
		Prompt: fmt.Sprintf("The research agent hit a CAPTCHA at %s. Please solve it in a browser, then reply 'done' (or 'skip' to move on).", url),
	}
}

// NewPaywallRequest asks whether to proceed past a paywalled source.
func NewPaywallRequest(url, title string) *SamplingRequest {
	return &SamplingRequest{
		Reason:  ReasonPaywall,
		URL:     url,
		Prompt:  fmt.Sprintf("The source %q at %s is behind a paywall. Reply 'yes' to provide access, or 'skip' to continue without it.", title, url),
		Context: map[string]any{"title": title},
	}
}

// NewConfirmationRequest asks the human to approve an action before
// the agent takes it.
func NewConfirmationRequest(action, detail string) *SamplingRequest {
	prompt := fmt.Sprintf("The research agent wants to: %s. Reply 'yes' to approve or 'no' to decline.", action)
	request := &SamplingRequest{
		Reason: ReasonConfirmation,
		Prompt: prompt,
	}
	if detail != "" {
		request.Context = map[string]any{"detail": detail}
	}
	return request
}

// Wire shapes for sampling/createMessage, following the MCP schema:
// a message list with role and a typed content block, plus _meta for
// anything the protocol doesn't model directly.

type wireSamplingParams struct {
	Meta      map[string]any         `json:"_meta,omitempty"`
	MaxTokens int64                  `json:"maxTokens"`
	Messages  []*wireSamplingMessage `json:"messages"`
}

type wireSamplingMessage struct {
	Role    string          `json:"role"`
	Content wireTextContent `json:"content"`
}

type wireTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WireParams renders the request as sampling/createMessage params: a
// single user-role text message, with reason, URL, and extra context
// in _meta.
func (r *SamplingRequest) WireParams() (json.RawMessage, error) {
	meta := map[string]any{"reason": string(r.Reason)}
	if r.URL != "" {
		meta["url"] = r.URL
	}
	for key, value := range r.Context {
		meta[key] = value
	}

	maxTokens := r.MaxResponseTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxResponseTokens
	}

	return internaljson.Marshal(&wireSamplingParams{
		Meta:      meta,
		MaxTokens: maxTokens,
		Messages: []*wireSamplingMessage{{
			Role:    "user",
			Content: wireTextContent{Type: "text", Text: r.Prompt},
		}},
	})
}

// SamplingResponseFromWire parses a sampling/createMessage result.
// Approved is false exactly when the stop reason indicates
// cancellation; Content is extracted whether the reply's content
// field is a structured text block or a bare string.
func SamplingResponseFromWire(result json.RawMessage) (*SamplingResponse, error) {
	var wire struct {
		Content    json.RawMessage `json:"content"`
		StopReason string          `json:"stopReason"`
		Model      string          `json:"model"`
		Meta       map[string]any  `json:"_meta"`
	}
	if err := internaljson.Unmarshal(result, &wire); err != nil {
		return nil, fmt.Errorf("parsing sampling result: %w", err)
	}

	response := &SamplingResponse{
		Approved: wire.StopReason != "cancelled" && wire.StopReason != "canceled",
		Metadata: wire.Meta,
	}
	if wire.StopReason != "" || wire.Model != "" {
		if response.Metadata == nil {
			response.Metadata = make(map[string]any)
		}
		if wire.StopReason != "" {
			response.Metadata["stopReason"] = wire.StopReason
		}
		if wire.Model != "" {
			response.Metadata["model"] = wire.Model
		}
	}

	if len(wire.Content) > 0 {
		var block wireTextContent
		if err := internaljson.Unmarshal(wire.Content, &block); err == nil && block.Text != "" {
			response.Content = block.Text
		} else {
			var raw string
			if err := internaljson.Unmarshal(wire.Content, &raw); err == nil {
				response.Content = raw
			}
		}
	}
	return response, nil
}
