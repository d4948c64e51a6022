package index

import (
	"math/rand"
	"testing"
)

func TestLSHParamValidation(t *testing.T) {
	if _, err := New(LSHSimHash, 4, Params{NTables: 0, NBits: 8}); err == nil {
		t.Error("expected error for n_tables < 1")
	}
	if _, err := New(LSHSimHash, 4, Params{NTables: 1, NBits: 65}); err == nil {
		t.Error("expected error for n_bits > 64")
	}
}

func TestLSHNoFallbackOnEmptyCandidates(t *testing.T) {
	idx, _ := New(LSHSimHash, 4, Params{NTables: 1, NBits: 64, Seed: 0})
	_ = idx.Add("a", []float32{1, 0, 0, 0})

	results, err := idx.Search([]float32{-1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// With 64 bits, the opposite-direction query flips every signature bit,
	// so its bucket holds no candidates; Search must return an empty,
	// non-nil slice rather than falling back to a full scan that finds "a".
	if results == nil || len(results) != 0 {
		t.Errorf("expected an empty, non-nil result slice, got %v", results)
	}
}

func TestLSHRecallOnRandomUnitVectors(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	dims := 16
	n := 100

	idx, err := New(LSHSimHash, dims, Params{NTables: 4, NBits: 8, Seed: 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vectors := make(map[string][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dims)
		for d := range v {
			v[d] = float32(rng.NormFloat64())
		}
		id := randID(i)
		vectors[id] = v
		if err := idx.Add(id, v); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	hits := 0
	for id, v := range vectors {
		results, err := idx.Search(v, 5)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		for _, r := range results {
			if r.ID == id {
				hits++
				break
			}
		}
	}

	recall := float64(hits) / float64(n)
	if recall < 0.8 {
		t.Errorf("recall@5 = %.2f, want >= 0.8", recall)
	}
}

func TestLSHRemoveAndRebuild(t *testing.T) {
	idx, _ := New(LSHSimHash, 4, Params{NTables: 2, NBits: 8, Seed: 1})
	_ = idx.Add("a", []float32{1, 0, 0, 0})
	_ = idx.Add("b", []float32{0, 1, 0, 0})
	idx.Remove("a")

	stats := idx.Stats()
	if stats.Size != 1 {
		t.Errorf("expected size 1 after remove, got %d", stats.Size)
	}

	if err := idx.Rebuild(map[string][]float32{"c": {1, 0, 0, 0}}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if idx.Stats().Size != 1 {
		t.Errorf("expected size 1 after rebuild, got %d", idx.Stats().Size)
	}
}
