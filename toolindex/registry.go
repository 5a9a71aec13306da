// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package toolindex

import (
	"sort"
	"sync"
)

// Result is a single search hit with its relevance score.
type Result struct {
	// Schema is the matched tool.
	Schema *Schema

	// Score is the BM25 relevance score. Higher is more relevant. The
	// scale depends on the corpus; scores are positive but unbounded.
	Score float64
}

// Registry holds all registered tool schemas and keeps the BM25 index
// in sync. Registration is expected from a single coordinating
// goroutine; an RWMutex guards the registry so reads remain safe while
// a late registration runs.
type Registry struct {
	mu sync.RWMutex

	// byName maps tool name to schema; order records insertion order
	// so search results and scores stay aligned and deterministic.
	byName map[string]*Schema
	order  []string

	index *bm25Index
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Schema),
		index:  newBM25Index(nil),
	}
}

// Register inserts or replaces a tool by name and rebuilds the index.
func (r *Registry) Register(schema *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(schema)
	r.rebuild()
}

// RegisterMany inserts or replaces several tools with one index
// rebuild.
func (r *Registry) RegisterMany(schemas []*Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, schema := range schemas {
		r.insert(schema)
	}
	r.rebuild()
}

// insert adds or replaces one schema. Caller holds the write lock.
func (r *Registry) insert(schema *Schema) {
	if _, exists := r.byName[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.byName[schema.Name] = schema
}

// rebuild reconstructs the BM25 index from the full registry
// contents, in insertion order. Caller holds the write lock.
func (r *Registry) rebuild() {
	corpus := make([][]string, len(r.order))
	for i, name := range r.order {
		corpus[i] = r.byName[name].Tokens()
	}
	r.index = newBM25Index(corpus)
}

// Get returns the schema registered under name, or nil.
func (r *Registry) Get(name string) *Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// All returns every registered schema in insertion order.
func (r *Registry) All() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]*Schema, len(r.order))
	for i, name := range r.order {
		schemas[i] = r.byName[name]
	}
	return schemas
}

// Search tokenizes the query exactly as tool descriptions are
// tokenized, scores every registered tool, discards zero scores, and
// returns the top limit results by descending score. Ties keep
// registry insertion order (stable sort). A limit <= 0 means no
// truncation.
func (r *Registry) Search(query string, limit int) []Result {
	queryTokens := Tokenize(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	scores := r.index.scores(queryTokens)
	var hits []Result
	for i, name := range r.order {
		if scores[i] > 0 {
			hits = append(hits, Result{Schema: r.byName[name], Score: scores[i]})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// EstimateTokens approximates the context cost of presenting the
// given schemas to a model: total character count of each tool's
// name, description, and rendered input schema, divided by four. This
// is a diagnostic heuristic, not a billing number.
func EstimateTokens(schemas []*Schema) int {
	var chars int
	for _, schema := range schemas {
		chars += len(schema.Name) + len(schema.Description) + schemaJSONLen(schema.InputSchema)
	}
	return chars / 4
}

// EstimateAllTokens is EstimateTokens over the whole registry.
func (r *Registry) EstimateAllTokens() int {
	return EstimateTokens(r.All())
}
