package retrieval

import (
	"math"
	"testing"
)

func TestCosineSimilaritySymmetry(t *testing.T) {
	a := []float32{0.3, 0.7, 0.1}
	b := []float32{0.9, 0.2, 0.4}

	ab := CosineSimilarity(a, b)
	ba := CosineSimilarity(b, a)

	if ab != ba {
		t.Errorf("expected symmetric similarity, got %f and %f", ab, ba)
	}
}

func TestCosineSimilaritySelf(t *testing.T) {
	a := []float32{1, 2, 3}

	sim := CosineSimilarity(a, a)
	if math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("expected self-similarity ~1, got %f", sim)
	}
}

func TestCosineSimilarityMalformed(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
	}{
		{"empty a", nil, []float32{1, 0}},
		{"empty b", []float32{1, 0}, nil},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}},
		{"zero vector", []float32{0, 0}, []float32{1, 0}},
	}

	for _, tc := range cases {
		if sim := CosineSimilarity(tc.a, tc.b); sim != 0 {
			t.Errorf("%s: expected 0, got %f", tc.name, sim)
		}
	}
}

func TestSearchRelevanceFloor(t *testing.T) {
	query := []float32{1, 0}
	corpus := []Item{
		{ID: "orthogonal", Vector: []float32{0, 1}},
		{ID: "halfway", Vector: []float32{1, 1.7320508}}, // cos = 0.5 exactly
	}

	results := Search(query, corpus, 10)
	for _, r := range results {
		if r.Similarity <= MinSimilarity {
			t.Errorf("result %s with similarity %f leaked through floor", r.Item.ID, r.Similarity)
		}
	}
}

func TestSearchTopKBound(t *testing.T) {
	query := []float32{1, 0}
	corpus := []Item{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0.9, 0.1}},
		{ID: "c", Vector: []float32{0.8, 0.2}},
	}

	results := Search(query, corpus, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestSearchOrderAndExclusion(t *testing.T) {
	// scenario: exact match first, near match second, orthogonal excluded
	query := []float32{1, 0}
	corpus := []Item{
		{ID: "x", Vector: []float32{1, 0}},
		{ID: "y", Vector: []float32{0, 1}},
		{ID: "z", Vector: []float32{0.9, 0.1}},
	}

	results := Search(query, corpus, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Item.ID != "x" || results[1].Item.ID != "z" {
		t.Errorf("expected [x z], got [%s %s]", results[0].Item.ID, results[1].Item.ID)
	}
}

func TestSearchStableTies(t *testing.T) {
	query := []float32{1, 0}
	corpus := []Item{
		{ID: "first", Vector: []float32{2, 0}},
		{ID: "second", Vector: []float32{3, 0}},
	}

	results := Search(query, corpus, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Item.ID != "first" {
		t.Errorf("tie should keep corpus order, got %s first", results[0].Item.ID)
	}
}

func TestSearchDoesNotMutateCorpus(t *testing.T) {
	query := []float32{1, 0}
	corpus := []Item{
		{ID: "b", Vector: []float32{0.5, 0.5}},
		{ID: "a", Vector: []float32{1, 0}},
	}

	Search(query, corpus, 2)
	if corpus[0].ID != "b" || corpus[1].ID != "a" {
		t.Error("corpus order was mutated by search")
	}
}

func TestSearchZeroTopK(t *testing.T) {
	if results := Search([]float32{1}, []Item{{ID: "a", Vector: []float32{1}}}, 0); results != nil {
		t.Errorf("expected nil for topK=0, got %v", results)
	}
}
