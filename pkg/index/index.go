// Package index implements the three interchangeable k-NN index kinds
// (flat, IVF, LSH-SimHash) behind a single contract.
package index

import (
	"errors"
	"fmt"
)

// Kind identifies which index implementation a library uses. The set is
// closed: there is no plugin mechanism for additional kinds.
type Kind string

const (
	Flat      Kind = "FLAT"
	IVF       Kind = "IVF"
	LSHSimHash Kind = "LSH_SIMHASH"
)

// Result is one scored match from a Search call.
type Result struct {
	ID    string
	Score float64
}

var (
	// ErrDimMismatch is returned by Add/Search when a vector's length does
	// not match the index's configured dimension.
	ErrDimMismatch = errors.New("index: dimension mismatch")
	// ErrNotTrained is returned by Add/Search on an index kind that
	// requires training (IVF) before it has been trained.
	ErrNotTrained = errors.New("index: not trained")
	// ErrInsufficientData is returned by Train when fewer samples than
	// clusters were supplied.
	ErrInsufficientData = errors.New("index: insufficient training data")
	// ErrInvalidParams is returned by New when index_params fail validation.
	ErrInvalidParams = errors.New("index: invalid parameters")
)

// Index is the common contract every index kind implements, per spec §4.2.
type Index interface {
	// Add inserts or overwrites the vector for id. Fails with
	// ErrDimMismatch or ErrNotTrained.
	Add(id string, vector []float32) error
	// Remove deletes id. No-op if absent.
	Remove(id string)
	// Search returns up to k (id, score) pairs, descending by score,
	// ties broken by ascending id. Empty index returns an empty slice.
	Search(query []float32, k int) ([]Result, error)
	// Train fits index-kind-specific state (centroids, for IVF) from
	// samples. No-op for kinds that do not require training.
	Train(samples map[string][]float32) error
	// Rebuild drops all state and repopulates from a full id->vector
	// snapshot, retraining first if the kind requires it and has not
	// yet been trained.
	Rebuild(entries map[string][]float32) error
	// Stats reports size, trained state, and kind-specific counters.
	Stats() Stats
}

// Stats is the common subset of index.Stats(); kinds may report
// additional counters via Extra.
type Stats struct {
	Kind    Kind
	Size    int
	Trained bool
	Extra   map[string]any
}

// Params bundles the kind-specific parameter bag validated at library
// creation time. Fields unused by a given Kind are ignored.
type Params struct {
	// IVF
	NClusters   int
	NProbes     int
	KMeansIters int
	// LSH-SimHash
	NTables int
	NBits   int
	// Shared
	Seed int64
}

// DefaultParams returns the spec's defaults for kind.
func DefaultParams(kind Kind) Params {
	switch kind {
	case IVF:
		return Params{NClusters: 8, NProbes: 2, KMeansIters: 20}
	case LSHSimHash:
		return Params{NTables: 4, NBits: 16}
	default:
		return Params{}
	}
}

// New constructs an index of the given kind for vectors of dimension dims.
func New(kind Kind, dims int, params Params) (Index, error) {
	if dims < 1 || dims > 65536 {
		return nil, fmt.Errorf("%w: dims %d out of range", ErrInvalidParams, dims)
	}
	switch kind {
	case Flat:
		return newFlatIndex(dims), nil
	case IVF:
		return newIVFIndex(dims, params)
	case LSHSimHash:
		return newLSHIndex(dims, params)
	default:
		return nil, fmt.Errorf("%w: unknown index kind %q", ErrInvalidParams, kind)
	}
}
