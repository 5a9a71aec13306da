// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package gateway implements the tool-discovery gateway: the single
// tool advertised to a client by default. Instead of paying the
// context cost of the full catalog, a client loads the gateway plus
// the few tools a search for its current task returns.
package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/blisspixel/deepr/toolindex"
)

// ToolName is the method and tool name the gateway is advertised
// under.
const ToolName = "deepr_tool_search"

// Search limit bounds. Requested limits are clamped, not rejected.
const (
	minLimit     = 1
	maxLimit     = 10
	defaultLimit = 3
)

// Schema returns the gateway's own tool schema: one required string
// "query" and an optional integer "limit".
func Schema() *toolindex.Schema {
	return toolindex.NewSchema(
		ToolName,
		"Search the research tool catalog by describing what you need in natural language. "+
			"Returns the most relevant tool schemas so you only load the tools your task uses.",
		&jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Natural language description of the capability you need.",
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum number of tools to return (1-10).",
					Minimum:     ptr(float64(minLimit)),
					Maximum:     ptr(float64(maxLimit)),
					Default:     json.RawMessage(fmt.Sprintf("%d", defaultLimit)),
				},
			},
			Required: []string{"query"},
		},
		"meta", toolindex.CostFree,
	)
}

func ptr[T any](v T) *T { return &v }

// Tool wraps a registry with the gateway search behavior. Construct
// one per service instance; it holds no state beyond the registry
// reference.
type Tool struct {
	registry *toolindex.Registry
}

// New returns a gateway over the given registry.
func New(registry *toolindex.Registry) *Tool {
	return &Tool{registry: registry}
}

// SearchResult is the structured result of a gateway search. A bad
// query populates Error rather than failing the call, so the client
// model can read the problem and retry with better input.
type SearchResult struct {
	Query string `json:"query"`

	// Tools are the matched schemas in MCP tool-list form.
	Tools []*toolindex.Schema `json:"tools"`

	// Message is a human-readable summary of the outcome.
	Message string `json:"message"`

	// Error is set for rejected queries (empty tool list).
	Error string `json:"error,omitempty"`

	// TotalAvailable is the registry size, included so a client that
	// sent a bad query knows a retry is worthwhile.
	TotalAvailable int `json:"totalAvailable"`
}

// Search runs a catalog search. An empty or whitespace query yields a
// structured error result, never a Go error; limits outside [1, 10]
// are clamped and a zero limit takes the default.
func (t *Tool) Search(query string, limit int) *SearchResult {
	total := t.registry.Count()

	if strings.TrimSpace(query) == "" {
		return &SearchResult{
			Query:          query,
			Tools:          []*toolindex.Schema{},
			Error:          "query must not be empty",
			Message:        fmt.Sprintf("Describe the capability you need; %d tools are available.", total),
			TotalAvailable: total,
		}
	}

	switch {
	case limit == 0:
		limit = defaultLimit
	case limit < minLimit:
		limit = minLimit
	case limit > maxLimit:
		limit = maxLimit
	}

	hits := t.registry.Search(query, limit)
	tools := make([]*toolindex.Schema, len(hits))
	for i, hit := range hits {
		tools[i] = hit.Schema
	}

	return &SearchResult{
		Query:          query,
		Tools:          tools,
		Message:        hintMessage(len(tools), total),
		TotalAvailable: total,
	}
}

// hintMessage summarizes a search outcome for the client model.
func hintMessage(matched, total int) string {
	switch matched {
	case 0:
		return fmt.Sprintf("No tools matched; try broader terms. %d tools are available.", total)
	case 1:
		return "Found 1 matching tool."
	default:
		return fmt.Sprintf("Found %d matching tools.", matched)
	}
}

// ContextSavings compares the token cost of presenting every tool
// against the gateway-only baseline.
type ContextSavings struct {
	AllToolsTokens int     `json:"allToolsTokens"`
	GatewayTokens  int     `json:"gatewayTokens"`
	PercentSaved   float64 `json:"percentSaved"`
}

// EstimateContextSavings reports estimated tokens for "all tools" vs
// "gateway alone plus one typical 3-result search". Diagnostic only;
// both sides use the same estimator so the comparison is consistent.
func (t *Tool) EstimateContextSavings() ContextSavings {
	allTokens := t.registry.EstimateAllTokens()

	gatewayTokens := toolindex.EstimateTokens([]*toolindex.Schema{Schema()})
	schemas := t.registry.All()
	if len(schemas) > defaultLimit {
		schemas = schemas[:defaultLimit]
	}
	gatewayTokens += toolindex.EstimateTokens(schemas)

	savings := ContextSavings{
		AllToolsTokens: allTokens,
		GatewayTokens:  gatewayTokens,
	}
	if allTokens > 0 {
		savings.PercentSaved = 100 * float64(allTokens-gatewayTokens) / float64(allTokens)
	}
	return savings
}
