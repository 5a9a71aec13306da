// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package toolindex

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/jsonschema-go/jsonschema"
)

func testSchemas() []*Schema {
	return []*Schema{
		NewSchema("web_search", "Search the public web for pages matching a query.",
			&jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "search terms"},
				},
				Required: []string{"query"},
			}, "search", CostLow),
		NewSchema("fetch_page", "Fetch a web page and extract readable article text.",
			&jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"url": {Type: "string", Description: "page address to fetch"},
				},
			}, "retrieval", CostLow),
		NewSchema("summarize_document", "Summarize a long document into key findings.",
			nil, "analysis", CostMedium),
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Search the Web!", []string{"search", "the", "web"}},
		{"a an of", nil},
		{"", nil},
		{"fetch_page: URL-based retrieval", []string{"fetch", "page", "url", "based", "retrieval"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.input)
		if len(got) == 0 {
			got = nil
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}

func TestRegisterThenSearch(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterMany(testSchemas())

	if got := registry.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}

	// A word of length > 2 from a registered description must be
	// findable by exact search.
	hits := registry.Search("summarize", 10)
	if len(hits) == 0 {
		t.Fatal("Search(summarize) returned no hits")
	}
	if hits[0].Schema.Name != "summarize_document" {
		t.Errorf("top hit = %q, want summarize_document", hits[0].Schema.Name)
	}
	for _, hit := range hits {
		if hit.Score <= 0 {
			t.Errorf("hit %q has non-positive score %f", hit.Schema.Name, hit.Score)
		}
	}
}

func TestSearchRespectsLimitAndOrdering(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterMany(testSchemas())

	hits := registry.Search("web page search fetch", 1)
	if len(hits) > 1 {
		t.Fatalf("Search(limit=1) returned %d hits", len(hits))
	}

	all := registry.Search("web page search fetch", 10)
	for i := 1; i < len(all); i++ {
		if all[i].Score > all[i-1].Score {
			t.Errorf("hits not sorted by descending score: %f before %f", all[i-1].Score, all[i].Score)
		}
	}
}

func TestSearchMatchesArgumentNames(t *testing.T) {
	// Schema property names participate in the indexed document.
	registry := NewRegistry()
	registry.RegisterMany(testSchemas())

	hits := registry.Search("url", 10)
	found := false
	for _, hit := range hits {
		if hit.Schema.Name == "fetch_page" {
			found = true
		}
	}
	if !found {
		t.Error("Search(url) did not find fetch_page via its argument name")
	}
}

func TestSearchEmptyInputs(t *testing.T) {
	registry := NewRegistry()

	// Empty registry: any query scores to nothing, never panics.
	if hits := registry.Search("anything", 5); len(hits) != 0 {
		t.Errorf("empty registry Search() = %d hits, want 0", len(hits))
	}

	registry.RegisterMany(testSchemas())

	// Empty and punctuation-only queries produce no tokens.
	for _, query := range []string{"", "   ", "?!"} {
		if hits := registry.Search(query, 5); len(hits) != 0 {
			t.Errorf("Search(%q) = %d hits, want 0", query, len(hits))
		}
	}
}

func TestRegisterReplacesByName(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterMany(testSchemas())

	replacement := NewSchema("web_search", "Query an academic paper corpus.", nil, "search", CostHigh)
	registry.Register(replacement)

	if got := registry.Count(); got != 3 {
		t.Fatalf("Count() after replace = %d, want 3", got)
	}
	if got := registry.Get("web_search"); got != replacement {
		t.Error("Get(web_search) did not return the replacement schema")
	}

	// Old description tokens are gone from the index.
	for _, hit := range registry.Search("public", 10) {
		if hit.Schema.Name == "web_search" {
			t.Error("replaced schema still matches its old description")
		}
	}
	// Insertion order is preserved across replacement.
	if all := registry.All(); all[0].Name != "web_search" {
		t.Errorf("All()[0] = %q, want web_search", all[0].Name)
	}
}

func TestBM25EmptyCorpus(t *testing.T) {
	index := newBM25Index(nil)
	scores := index.scores([]string{"anything"})
	if len(scores) != 0 {
		t.Errorf("empty corpus scores length = %d, want 0", len(scores))
	}
}

func TestBM25IDFNonNegative(t *testing.T) {
	// A term present in every document must still get a non-negative
	// idf thanks to the +1 smoothing.
	corpus := [][]string{
		{"search", "web"},
		{"search", "papers"},
		{"search", "news"},
	}
	index := newBM25Index(corpus)
	if idf := index.inverseDocumentFrequency["search"]; idf < 0 {
		t.Errorf("idf(search) = %f, want >= 0", idf)
	}
	for _, score := range index.scores([]string{"search"}) {
		if score < 0 {
			t.Errorf("score = %f, want >= 0", score)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	schemas := testSchemas()
	got := EstimateTokens(schemas)
	if got <= 0 {
		t.Fatalf("EstimateTokens() = %d, want > 0", got)
	}
	// More tools never estimate lower than a subset.
	if subset := EstimateTokens(schemas[:1]); subset >= got {
		t.Errorf("EstimateTokens(subset) = %d, want < %d", subset, got)
	}
}
