// Package retrieval implements exhaustive-scan vector search over small
// in-memory corpora. There is no index: at the corpus sizes this library
// targets (hundreds to low thousands of entries) a full cosine scan per
// query is cheaper than maintaining ANN structures.
package retrieval

import (
	"math"
	"sort"
)

// MinSimilarity is the relevance floor. Results at or below this score are
// discarded before top-K truncation so marginal matches never displace
// nothing (an empty result is better than a misleading one).
const MinSimilarity = 0.5

// Item is one searchable corpus entry. Kind tags the source collection so
// callers can route results back to their origin.
type Item struct {
	ID     string
	Kind   string
	Text   string
	Vector []float32
}

// Result pairs an item with its similarity to the query.
type Result struct {
	Item       Item
	Similarity float64
}

// CosineSimilarity returns dot(a,b)/(|a||b|). Malformed input (length
// mismatch, empty, or zero-magnitude vectors) yields 0 rather than an error;
// a zero score falls under the relevance floor anyway.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Search scores every corpus item against the query vector and returns at
// most topK results with similarity strictly above MinSimilarity, ordered by
// descending similarity. Ties keep corpus input order. Inputs are not
// mutated.
func Search(query []float32, corpus []Item, topK int) []Result {
	if topK <= 0 || len(corpus) == 0 {
		return nil
	}

	var results []Result
	for _, item := range corpus {
		sim := CosineSimilarity(query, item.Vector)
		if sim > MinSimilarity {
			results = append(results, Result{Item: item, Similarity: sim})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results
}
