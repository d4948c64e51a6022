package index

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/libracore/libracore/pkg/vmath"
)

// lshIndex is a multi-table random-hyperplane (SimHash) index over cosine
// similarity. Candidates come only from matching buckets; there is no
// fallback scan, by design (spec §4.5).
type lshIndex struct {
	mu sync.RWMutex

	dims    int
	nTables int
	nBits   int
	seed    int64

	hyperplanes [][][]float32                    // [table][bit] -> dims-length random vector
	buckets     []map[uint64]map[string]struct{}  // [table][signature] -> ids
	vectors     map[string][]float32
}

func newLSHIndex(dims int, p Params) (*lshIndex, error) {
	if p.NTables < 1 {
		return nil, fmt.Errorf("%w: n_tables must be >= 1", ErrInvalidParams)
	}
	if p.NBits < 1 || p.NBits > 64 {
		return nil, fmt.Errorf("%w: n_bits must be in [1, 64]", ErrInvalidParams)
	}

	lsh := &lshIndex{
		dims:    dims,
		nTables: p.NTables,
		nBits:   p.NBits,
		seed:    p.Seed,
		vectors: make(map[string][]float32),
	}
	lsh.resampleLocked()
	return lsh, nil
}

// resampleLocked regenerates every table's hyperplanes and empties its
// buckets. Assumes lsh.mu is held (or the index is not yet published).
func (lsh *lshIndex) resampleLocked() {
	lsh.hyperplanes = make([][][]float32, lsh.nTables)
	lsh.buckets = make([]map[uint64]map[string]struct{}, lsh.nTables)
	for t := 0; t < lsh.nTables; t++ {
		lsh.hyperplanes[t] = sampleHyperplanes(lsh.seed*31+int64(t), lsh.nBits, lsh.dims)
		lsh.buckets[t] = make(map[uint64]map[string]struct{})
	}
}

func sampleHyperplanes(seed int64, nBits, dims int) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	planes := make([][]float32, nBits)
	for b := 0; b < nBits; b++ {
		plane := make([]float32, dims)
		for d := 0; d < dims; d++ {
			plane[d] = float32(rng.NormFloat64())
		}
		planes[b] = plane
	}
	return planes
}

// signature computes the packed sign bitstring for v against table t's
// hyperplanes. sign(0) is treated as 1 per spec §4.5.
func (lsh *lshIndex) signature(v []float32, table int) uint64 {
	var sig uint64
	for b, plane := range lsh.hyperplanes[table] {
		if vmath.Dot(v, plane) >= 0 {
			sig |= 1 << uint(b)
		}
	}
	return sig
}

func (lsh *lshIndex) Add(id string, vector []float32) error {
	if len(vector) != lsh.dims {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimMismatch, lsh.dims, len(vector))
	}
	v := make([]float32, len(vector))
	copy(v, vector)

	lsh.mu.Lock()
	defer lsh.mu.Unlock()

	lsh.removeLocked(id)
	lsh.vectors[id] = v
	for t := 0; t < lsh.nTables; t++ {
		sig := lsh.signature(v, t)
		bucket := lsh.buckets[t][sig]
		if bucket == nil {
			bucket = make(map[string]struct{})
			lsh.buckets[t][sig] = bucket
		}
		bucket[id] = struct{}{}
	}
	return nil
}

func (lsh *lshIndex) Remove(id string) {
	lsh.mu.Lock()
	defer lsh.mu.Unlock()
	lsh.removeLocked(id)
}

// removeLocked assumes lsh.mu is held.
func (lsh *lshIndex) removeLocked(id string) {
	v, ok := lsh.vectors[id]
	if !ok {
		return
	}
	for t := 0; t < lsh.nTables; t++ {
		sig := lsh.signature(v, t)
		if bucket, ok := lsh.buckets[t][sig]; ok {
			delete(bucket, id)
			if len(bucket) == 0 {
				delete(lsh.buckets[t], sig)
			}
		}
	}
	delete(lsh.vectors, id)
}

func (lsh *lshIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != lsh.dims {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimMismatch, lsh.dims, len(query))
	}
	if k < 1 {
		k = 1
	}

	lsh.mu.RLock()
	defer lsh.mu.RUnlock()

	candidates := make(map[string]struct{})
	for t := 0; t < lsh.nTables; t++ {
		sig := lsh.signature(query, t)
		for id := range lsh.buckets[t][sig] {
			candidates[id] = struct{}{}
		}
	}

	if len(candidates) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, 0, len(candidates))
	for id := range candidates {
		results = append(results, Result{ID: id, Score: vmath.Cosine(query, lsh.vectors[id])})
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (lsh *lshIndex) Train(map[string][]float32) error { return nil }

func (lsh *lshIndex) Rebuild(entries map[string][]float32) error {
	lsh.mu.Lock()
	defer lsh.mu.Unlock()

	lsh.resampleLocked()
	lsh.vectors = make(map[string][]float32, len(entries))
	for id, v := range entries {
		cp := make([]float32, len(v))
		copy(cp, v)
		lsh.vectors[id] = cp
		for t := 0; t < lsh.nTables; t++ {
			sig := lsh.signature(cp, t)
			bucket := lsh.buckets[t][sig]
			if bucket == nil {
				bucket = make(map[string]struct{})
				lsh.buckets[t][sig] = bucket
			}
			bucket[id] = struct{}{}
		}
	}
	return nil
}

func (lsh *lshIndex) Stats() Stats {
	lsh.mu.RLock()
	defer lsh.mu.RUnlock()

	totalBuckets := 0
	maxBucket := 0
	for t := 0; t < lsh.nTables; t++ {
		totalBuckets += len(lsh.buckets[t])
		for _, b := range lsh.buckets[t] {
			if len(b) > maxBucket {
				maxBucket = len(b)
			}
		}
	}

	return Stats{
		Kind: LSHSimHash,
		Size: len(lsh.vectors),
		// Hyperplanes are seeded at construction, not learned from
		// data, so LSH-SimHash has no not-trained state either.
		Trained: true,
		Extra: map[string]any{
			"n_tables":      lsh.nTables,
			"n_bits":        lsh.nBits,
			"total_buckets": totalBuckets,
			"max_bucket":    maxBucket,
		},
	}
}
