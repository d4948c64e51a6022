package index

import (
	"math/rand"
	"testing"
)

func TestIVFParamValidation(t *testing.T) {
	if _, err := New(IVF, 4, Params{NClusters: 0, NProbes: 1}); err == nil {
		t.Error("expected error for n_clusters < 1")
	}
	if _, err := New(IVF, 4, Params{NClusters: 2, NProbes: 3}); err == nil {
		t.Error("expected error for n_probes > n_clusters")
	}
}

func TestIVFAddBeforeTrainRejected(t *testing.T) {
	idx, err := New(IVF, 4, Params{NClusters: 2, NProbes: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Add("a", []float32{1, 0, 0, 0}); err == nil {
		t.Error("expected NOT_TRAINED error before Train")
	}
}

func TestIVFTrainInsufficientData(t *testing.T) {
	idx, _ := New(IVF, 4, Params{NClusters: 5, NProbes: 1})
	samples := map[string][]float32{"a": {1, 0, 0, 0}}
	if err := idx.Train(samples); err == nil {
		t.Error("expected INSUFFICIENT_DATA error")
	}
}

func TestIVFMatchesFlatWhenProbingAllClusters(t *testing.T) {
	A := []float32{1, 0, 0, 0}
	B := []float32{0, 1, 0, 0}
	C := []float32{0.9, 0.1, 0, 0}
	data := map[string][]float32{"A": A, "B": B, "C": C}

	ivf, err := New(IVF, 4, Params{NClusters: 2, NProbes: 2, Seed: 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ivf.Train(data); err != nil {
		t.Fatalf("Train: %v", err)
	}
	for id, v := range data {
		if err := ivf.Add(id, v); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}

	flat, _ := New(Flat, 4, Params{})
	for id, v := range data {
		_ = flat.Add(id, v)
	}

	query := []float32{1, 0, 0, 0}
	ivfResults, err := ivf.Search(query, 2)
	if err != nil {
		t.Fatalf("ivf Search: %v", err)
	}
	flatResults, _ := flat.Search(query, 2)

	got := map[string]bool{}
	for _, r := range ivfResults {
		got[r.ID] = true
	}
	for _, r := range flatResults {
		if !got[r.ID] {
			t.Errorf("ivf result set %v missing flat result %s", ivfResults, r.ID)
		}
	}
}

func TestIVFRebuildFixedPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	data := map[string][]float32{}
	for i := 0; i < 30; i++ {
		data[randID(i)] = []float32{float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64())}
	}

	idx, _ := New(IVF, 3, Params{NClusters: 4, NProbes: 4, Seed: 7})
	if err := idx.Train(data); err != nil {
		t.Fatalf("Train: %v", err)
	}

	first := idx.Stats()
	if err := idx.Rebuild(data); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	second := idx.Stats()

	if first.Size != second.Size {
		t.Errorf("rebuild is not a fixed point: size %d != %d", first.Size, second.Size)
	}
}

func randID(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%len(letters)]) + string(rune('0'+i/len(letters)))
}
