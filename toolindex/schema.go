// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package toolindex

import (
	"regexp"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	internaljson "github.com/blisspixel/deepr/internal/json"
)

// CostTier labels the relative expense of invoking a tool, so agents
// can prefer cheaper tools when several match.
type CostTier string

const (
	CostFree   CostTier = "free"
	CostLow    CostTier = "low"
	CostMedium CostTier = "medium"
	CostHigh   CostTier = "high"
)

// Schema describes one research tool: its name, natural-language
// description, and JSON Schema for parameters. Construct with
// NewSchema so the derived token list is populated; the zero value is
// not indexable.
type Schema struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
	Category    string             `json:"category,omitempty"`
	CostTier    CostTier           `json:"costTier,omitempty"`

	// tokens is the tokenized name+description+argument text, computed
	// once at construction and immutable thereafter.
	tokens []string
}

// NewSchema builds a tool schema and derives its search tokens. Name
// and argument tokens are repeated so they carry more ranking weight
// than argument descriptions (per-field BM25 adds implementation
// weight for marginal benefit on corpora this small).
func NewSchema(name, description string, inputSchema *jsonschema.Schema, category string, cost CostTier) *Schema {
	s := &Schema{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
		Category:    category,
		CostTier:    cost,
	}
	s.tokens = buildCompositeTokens(s)
	return s
}

// Tokens returns the derived token list. The returned slice must not
// be modified.
func (s *Schema) Tokens() []string { return s.tokens }

// Field repetition weights for the composite document.
const (
	weightName                = 3
	weightDescription         = 2
	weightArgumentName        = 2
	weightArgumentDescription = 1
)

// buildCompositeTokens creates a weighted token sequence for the tool
// by repeating each field's tokens according to the weight constants.
func buildCompositeTokens(s *Schema) []string {
	var tokens []string
	appendWeighted := func(text string, weight int) {
		fieldTokens := Tokenize(text)
		for range weight {
			tokens = append(tokens, fieldTokens...)
		}
	}

	appendWeighted(s.Name, weightName)
	appendWeighted(s.Description, weightDescription)

	names, descriptions := extractArguments(s.InputSchema)
	for _, name := range names {
		appendWeighted(name, weightArgumentName)
	}
	for _, description := range descriptions {
		appendWeighted(description, weightArgumentDescription)
	}
	return tokens
}

// extractArguments pulls top-level property names and descriptions
// out of a tool's input schema. Best-effort: schemas without object
// properties yield empty slices.
func extractArguments(schema *jsonschema.Schema) (names, descriptions []string) {
	if schema == nil {
		return nil, nil
	}
	for name, property := range schema.Properties {
		names = append(names, name)
		if property != nil && property.Description != "" {
			descriptions = append(descriptions, property.Description)
		}
	}
	return names, descriptions
}

// tokenPattern splits text into alphanumeric runs.
var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize splits text into lowercase alphanumeric tokens, discarding
// tokens of length two or less. Short tokens ("a", "is", "of") are
// noise words that don't contribute to relevance ranking.
func Tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)

	// Filter short tokens in place.
	tokens := matches[:0]
	for _, match := range matches {
		if len(match) > 2 {
			tokens = append(tokens, match)
		}
	}
	return tokens
}

// schemaJSONLen returns the length of the schema's JSON rendering, for
// token estimation. Zero for a nil or unmarshalable schema.
func schemaJSONLen(schema *jsonschema.Schema) int {
	if schema == nil {
		return 0
	}
	data, err := internaljson.Marshal(schema)
	if err != nil {
		return 0
	}
	return len(data)
}
