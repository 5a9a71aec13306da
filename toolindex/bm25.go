// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package toolindex

import "math"

// BM25 parameters (Okapi variant).
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25Index is a BM25 index over an ordered corpus of token lists.
// The index is built at construction time and is immutable
// thereafter, so it is safe for concurrent read access. The registry
// rebuilds it wholesale on every mutation: tool counts are tens, not
// thousands, and a full rebuild is O(total tokens).
type bm25Index struct {
	// documentTermFrequencies[i][term] is the term frequency in
	// document i.
	documentTermFrequencies []map[string]int

	// documentLengths[i] is the token count of document i.
	documentLengths []int

	// averageDocumentLength is the mean of documentLengths.
	averageDocumentLength float64

	// inverseDocumentFrequency[term] is the precomputed smoothed IDF
	// for each term in the corpus.
	inverseDocumentFrequency map[string]float64
}

// newBM25Index builds an index from the corpus, one token list per
// document, in corpus order.
func newBM25Index(corpus [][]string) *bm25Index {
	index := &bm25Index{
		documentTermFrequencies:  make([]map[string]int, len(corpus)),
		documentLengths:          make([]int, len(corpus)),
		inverseDocumentFrequency: make(map[string]float64),
	}

	// Track how many documents contain each term (for IDF).
	documentFrequency := make(map[string]int)

	var totalLength int
	for i, tokens := range corpus {
		index.documentLengths[i] = len(tokens)
		totalLength += len(tokens)

		termFrequency := make(map[string]int)
		for _, token := range tokens {
			if termFrequency[token] == 0 {
				documentFrequency[token]++
			}
			termFrequency[token]++
		}
		index.documentTermFrequencies[i] = termFrequency
	}

	if len(corpus) > 0 {
		index.averageDocumentLength = float64(totalLength) / float64(len(corpus))
	}

	// Precompute IDF per term: ln((N - df + 0.5)/(df + 0.5) + 1). The
	// +1 inside the log keeps the value non-negative even for terms
	// that appear in every document.
	documentCount := float64(len(corpus))
	for term, frequency := range documentFrequency {
		df := float64(frequency)
		index.inverseDocumentFrequency[term] = math.Log((documentCount-df+0.5)/(df+0.5) + 1)
	}

	return index
}

// scores returns the BM25 score of every document against the query
// tokens, in corpus order. An empty corpus or empty query yields an
// all-zero vector, never an error.
func (index *bm25Index) scores(queryTokens []string) []float64 {
	result := make([]float64, len(index.documentLengths))
	if len(queryTokens) == 0 {
		return result
	}
	for i := range index.documentLengths {
		result[i] = index.score(i, queryTokens)
	}
	return result
}

// score computes the BM25 score for one document.
func (index *bm25Index) score(documentIndex int, queryTokens []string) float64 {
	termFrequency := index.documentTermFrequencies[documentIndex]
	documentLength := float64(index.documentLengths[documentIndex])

	var score float64
	for _, token := range queryTokens {
		idf, exists := index.inverseDocumentFrequency[token]
		if !exists {
			continue
		}
		frequency := float64(termFrequency[token])
		if frequency == 0 {
			continue
		}

		// IDF * (tf * (k1 + 1)) / (tf + k1 * (1 - b + b * dl/avgdl))
		numerator := frequency * (bm25K1 + 1)
		denominator := frequency + bm25K1*(1-bm25B+bm25B*documentLength/index.averageDocumentLength)
		score += idf * numerator / denominator
	}
	return score
}
