package index

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"

	"github.com/libracore/libracore/pkg/vmath"
)

// flatIndex is exact brute-force k-NN over cosine similarity.
type flatIndex struct {
	mu      sync.RWMutex
	dims    int
	vectors map[string][]float32
}

func newFlatIndex(dims int) *flatIndex {
	return &flatIndex{
		dims:    dims,
		vectors: make(map[string][]float32),
	}
}

func (f *flatIndex) Add(id string, vector []float32) error {
	if len(vector) != f.dims {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimMismatch, f.dims, len(vector))
	}
	v := make([]float32, len(vector))
	copy(v, vector)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[id] = v
	return nil
}

func (f *flatIndex) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vectors, id)
}

func (f *flatIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != f.dims {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimMismatch, f.dims, len(query))
	}
	if k < 1 {
		k = 1
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.vectors) == 0 {
		return []Result{}, nil
	}

	h := &scoreMinHeap{}
	heap.Init(h)
	for id, vec := range f.vectors {
		score := vmath.Cosine(query, vec)
		if h.Len() < k {
			heap.Push(h, scoredID{id: id, score: score})
		} else if better(score, id, (*h)[0].score, (*h)[0].id) {
			heap.Pop(h)
			heap.Push(h, scoredID{id: id, score: score})
		}
	}

	out := make([]Result, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item := heap.Pop(h).(scoredID)
		out[i] = Result{ID: item.id, Score: item.score}
	}
	sortResults(out)
	return out, nil
}

func (f *flatIndex) Train(map[string][]float32) error { return nil }

func (f *flatIndex) Rebuild(entries map[string][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = make(map[string][]float32, len(entries))
	for id, v := range entries {
		cp := make([]float32, len(v))
		copy(cp, v)
		f.vectors[id] = cp
	}
	return nil
}

func (f *flatIndex) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	// Flat has no training step, so it is never in a not-trained state:
	// Trained is reported true unconditionally rather than tracking an
	// actual training flag.
	return Stats{Kind: Flat, Size: len(f.vectors), Trained: true}
}

// better reports whether (score, id) ranks ahead of (otherScore, otherID):
// higher score wins, ties broken by ascending id.
func better(score float64, id string, otherScore float64, otherID string) bool {
	if score != otherScore {
		return score > otherScore
	}
	return id < otherID
}

// sortResults orders results descending by score, ascending by id on ties.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		return better(results[i].Score, results[i].ID, results[j].Score, results[j].ID)
	})
}

// scoredID is a heap element pairing an id with its similarity score.
type scoredID struct {
	id    string
	score float64
}

// scoreMinHeap is a min-heap by score (worst match on top), used to keep
// the running top-k during a single pass over all candidates.
type scoreMinHeap []scoredID

func (h scoreMinHeap) Len() int { return len(h) }
func (h scoreMinHeap) Less(i, j int) bool {
	// Min-heap: the item that should be evicted first is "less".
	return !better(h[i].score, h[i].id, h[j].score, h[j].id)
}
func (h scoreMinHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoreMinHeap) Push(x any) {
	*h = append(*h, x.(scoredID))
}

func (h *scoreMinHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
