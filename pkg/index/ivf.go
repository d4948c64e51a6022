package index

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/libracore/libracore/pkg/vmath"
)

// ivfIndex is an inverted-file cluster index: k-means-trained centroids
// plus per-centroid posting lists, ranked by cosine similarity.
type ivfIndex struct {
	mu sync.RWMutex

	dims        int
	nClusters   int
	nProbes     int
	kmeansIters int
	seed        int64

	trained   bool
	centroids [][]float32
	lists     [][]string          // cluster index -> ids assigned
	vectors   map[string][]float32 // raw id -> vector, retained for rebuild/update
	assigned  map[string]int       // id -> cluster index, for O(1) removal
}

func newIVFIndex(dims int, p Params) (*ivfIndex, error) {
	if p.NClusters < 1 {
		return nil, fmt.Errorf("%w: n_clusters must be >= 1", ErrInvalidParams)
	}
	if p.NProbes < 1 || p.NProbes > p.NClusters {
		return nil, fmt.Errorf("%w: n_probes must be in [1, n_clusters]", ErrInvalidParams)
	}
	if p.KMeansIters < 1 {
		p.KMeansIters = 20
	}
	return &ivfIndex{
		dims:        dims,
		nClusters:   p.NClusters,
		nProbes:     p.NProbes,
		kmeansIters: p.KMeansIters,
		seed:        p.Seed,
		vectors:     make(map[string][]float32),
		assigned:    make(map[string]int),
	}, nil
}

func (ivf *ivfIndex) Add(id string, vector []float32) error {
	if len(vector) != ivf.dims {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimMismatch, ivf.dims, len(vector))
	}

	ivf.mu.Lock()
	defer ivf.mu.Unlock()

	if !ivf.trained {
		return ErrNotTrained
	}

	v := make([]float32, len(vector))
	copy(v, vector)

	ivf.removeLocked(id)

	cluster := ivf.nearestCentroidLocked(v)
	ivf.vectors[id] = v
	ivf.assigned[id] = cluster
	ivf.lists[cluster] = append(ivf.lists[cluster], id)
	return nil
}

func (ivf *ivfIndex) Remove(id string) {
	ivf.mu.Lock()
	defer ivf.mu.Unlock()
	ivf.removeLocked(id)
}

// removeLocked assumes ivf.mu is held.
func (ivf *ivfIndex) removeLocked(id string) {
	cluster, ok := ivf.assigned[id]
	if !ok {
		return
	}
	delete(ivf.vectors, id)
	delete(ivf.assigned, id)
	list := ivf.lists[cluster]
	for i, candidate := range list {
		if candidate == id {
			ivf.lists[cluster] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func (ivf *ivfIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != ivf.dims {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimMismatch, ivf.dims, len(query))
	}
	if k < 1 {
		k = 1
	}

	ivf.mu.RLock()
	defer ivf.mu.RUnlock()

	if !ivf.trained {
		return nil, ErrNotTrained
	}
	if len(ivf.vectors) == 0 {
		return []Result{}, nil
	}

	type centroidScore struct {
		idx   int
		score float64
	}
	scores := make([]centroidScore, len(ivf.centroids))
	for i, c := range ivf.centroids {
		scores[i] = centroidScore{idx: i, score: vmath.Cosine(query, c)}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].idx < scores[j].idx
	})

	probes := ivf.nProbes
	if probes > len(scores) {
		probes = len(scores)
	}

	var results []Result
	for i := 0; i < probes; i++ {
		cluster := scores[i].idx
		for _, id := range ivf.lists[cluster] {
			results = append(results, Result{ID: id, Score: vmath.Cosine(query, ivf.vectors[id])})
		}
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (ivf *ivfIndex) Train(samples map[string][]float32) error {
	ivf.mu.Lock()
	defer ivf.mu.Unlock()
	return ivf.trainLocked(samples)
}

// trainLocked assumes ivf.mu is held for writing.
func (ivf *ivfIndex) trainLocked(samples map[string][]float32) error {
	if len(samples) < ivf.nClusters {
		return fmt.Errorf("%w: need >= %d samples, got %d", ErrInsufficientData, ivf.nClusters, len(samples))
	}

	ids := make([]string, 0, len(samples))
	vectors := make([][]float32, 0, len(samples))
	for id, v := range samples {
		ids = append(ids, id)
		vectors = append(vectors, vmath.Normalize(v))
	}

	centroids := kMeansCosine(vectors, ivf.nClusters, ivf.kmeansIters, ivf.seed)
	ivf.centroids = centroids
	ivf.trained = true
	ivf.assignAllLocked(samples)
	return nil
}

// assignAllLocked rebuilds lists/assigned/vectors from a full snapshot
// against the current centroids. Assumes ivf.mu is held and ivf.trained.
func (ivf *ivfIndex) assignAllLocked(entries map[string][]float32) {
	ivf.lists = make([][]string, ivf.nClusters)
	ivf.vectors = make(map[string][]float32, len(entries))
	ivf.assigned = make(map[string]int, len(entries))

	for id, v := range entries {
		cp := make([]float32, len(v))
		copy(cp, v)
		cluster := ivf.nearestCentroidLocked(cp)
		ivf.vectors[id] = cp
		ivf.assigned[id] = cluster
		ivf.lists[cluster] = append(ivf.lists[cluster], id)
	}
}

func (ivf *ivfIndex) Rebuild(entries map[string][]float32) error {
	ivf.mu.Lock()
	defer ivf.mu.Unlock()

	if !ivf.trained {
		return ivf.trainLocked(entries)
	}
	ivf.assignAllLocked(entries)
	return nil
}

func (ivf *ivfIndex) Stats() Stats {
	ivf.mu.RLock()
	defer ivf.mu.RUnlock()

	extra := map[string]any{
		"n_clusters": ivf.nClusters,
		"n_probes":   ivf.nProbes,
	}
	if ivf.trained {
		sizes := make([]int, len(ivf.lists))
		for i, list := range ivf.lists {
			sizes[i] = len(list)
		}
		extra["cluster_sizes"] = sizes
	}

	return Stats{
		Kind:    IVF,
		Size:    len(ivf.vectors),
		Trained: ivf.trained,
		Extra:   extra,
	}
}

// nearestCentroidLocked returns the index of the centroid with highest
// cosine similarity to v, ties broken by lowest index. Assumes ivf.mu held.
func (ivf *ivfIndex) nearestCentroidLocked(v []float32) int {
	best := 0
	bestScore := vmath.Cosine(v, ivf.centroids[0])
	for i := 1; i < len(ivf.centroids); i++ {
		score := vmath.Cosine(v, ivf.centroids[i])
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}

// kMeansCosine clusters normalized vectors by cosine similarity using
// k-means++ seeding followed by Lloyd iterations. Empty clusters after an
// iteration are re-seeded from the farthest point of the largest cluster.
// Stops when the maximum centroid shift falls below 1e-4 or iters is
// reached.
func kMeansCosine(vectors [][]float32, k, iters int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	dims := len(vectors[0])

	centroids := make([][]float32, k)
	centroids[0] = cloneVec(vectors[rng.Intn(len(vectors))])

	for i := 1; i < k; i++ {
		distances := make([]float64, len(vectors))
		var total float64
		for j, v := range vectors {
			minDist := 2.0 // max possible (1 - cosine) for unit vectors
			for c := 0; c < i; c++ {
				d := 1 - vmath.Cosine(v, centroids[c])
				if d < minDist {
					minDist = d
				}
			}
			distances[j] = minDist * minDist
			total += distances[j]
		}

		if total == 0 {
			centroids[i] = cloneVec(vectors[rng.Intn(len(vectors))])
			continue
		}

		r := rng.Float64() * total
		var cum float64
		for j, d := range distances {
			cum += d
			if cum >= r {
				centroids[i] = cloneVec(vectors[j])
				break
			}
		}
		if centroids[i] == nil {
			centroids[i] = cloneVec(vectors[len(vectors)-1])
		}
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < iters; iter++ {
		for i, v := range vectors {
			assignments[i] = nearestCentroidOf(v, centroids)
		}

		newCentroids := make([][]float32, k)
		counts := make([]int, k)
		for i := range newCentroids {
			newCentroids[i] = make([]float32, dims)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for d := 0; d < dims; d++ {
				newCentroids[c][d] += v[d]
			}
		}
		for c := range newCentroids {
			if counts[c] == 0 {
				newCentroids[c] = farthestPointFromLargestCluster(vectors, assignments, counts, centroids)
				continue
			}
			for d := 0; d < dims; d++ {
				newCentroids[c][d] /= float32(counts[c])
			}
		}

		maxShift := 0.0
		for c := range centroids {
			shift := math.Sqrt(vmath.L2Sq(centroids[c], newCentroids[c]))
			if shift > maxShift {
				maxShift = shift
			}
		}
		centroids = newCentroids
		if maxShift < 1e-4 {
			break
		}
	}

	return centroids
}

func nearestCentroidOf(v []float32, centroids [][]float32) int {
	best := 0
	bestScore := vmath.Cosine(v, centroids[0])
	for i := 1; i < len(centroids); i++ {
		score := vmath.Cosine(v, centroids[i])
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}

// farthestPointFromLargestCluster re-seeds an empty cluster from the point
// furthest (by cosine distance) from the centroid of the largest cluster.
func farthestPointFromLargestCluster(vectors [][]float32, assignments, counts []int, centroids [][]float32) []float32 {
	largest := 0
	for c := 1; c < len(counts); c++ {
		if counts[c] > counts[largest] {
			largest = c
		}
	}

	farthestIdx := -1
	farthestDist := -1.0
	for i, v := range vectors {
		if assignments[i] != largest {
			continue
		}
		d := 1 - vmath.Cosine(v, centroids[largest])
		if d > farthestDist {
			farthestDist = d
			farthestIdx = i
		}
	}
	if farthestIdx == -1 {
		return cloneVec(vectors[0])
	}
	return cloneVec(vectors[farthestIdx])
}

func cloneVec(v []float32) []float32 {
	cp := make([]float32, len(v))
	copy(cp, v)
	return cp
}
