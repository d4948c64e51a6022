package core

import (
	"context"
	"fmt"

	"github.com/libracore/libracore/pkg/index"
	"github.com/libracore/libracore/pkg/vmath"
)

// libraryHandle is everything the store keeps for one library: the
// entity, its documents and chunks keyed by id, its index, and the
// writer-preference lock guarding all three (spec §4.6).
type libraryHandle struct {
	lock *rwLock

	library   Library
	documents map[string]Document
	chunks    map[string]Chunk
	idx       index.Index
}

func newLibraryHandle(lib Library) (*libraryHandle, error) {
	idx, err := index.New(lib.IndexKind, lib.Dims, lib.IndexParams)
	if err != nil {
		return nil, err
	}
	return &libraryHandle{
		lock:      newRWLock(),
		library:   lib,
		documents: make(map[string]Document),
		chunks:    make(map[string]Chunk),
		idx:       idx,
	}, nil
}

// chunkSnapshotLocked returns a fresh id->vector map from the current
// chunk set. Caller must hold at least a read lock on h.
func (h *libraryHandle) chunkSnapshotLocked() map[string][]float32 {
	snap := make(map[string][]float32, len(h.chunks))
	for id, c := range h.chunks {
		snap[id] = c.Embedding
	}
	return snap
}

// validateChunkLocked checks the structural preconditions for inserting
// or updating a chunk: document exists, dims match, values finite.
func (h *libraryHandle) validateChunkLocked(documentID string, embedding []float32) error {
	if _, ok := h.documents[documentID]; !ok {
		return fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	if len(embedding) != h.library.Dims {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimMismatch, h.library.Dims, len(embedding))
	}
	if !vmath.Finite(embedding) {
		return ErrNonFinite
	}
	return nil
}

// withReader runs fn with h's read lock held, honoring ctx cancellation.
func (h *libraryHandle) withReader(ctx context.Context, fn func() error) error {
	if err := h.lock.RLock(ctx); err != nil {
		return wrapErr(Cancelled, "rlock", h.library.ID, err)
	}
	defer h.lock.RUnlock()
	return fn()
}

// withWriter runs fn with h's write lock held, honoring ctx cancellation.
func (h *libraryHandle) withWriter(ctx context.Context, fn func() error) error {
	if err := h.lock.Lock(ctx); err != nil {
		return wrapErr(Cancelled, "lock", h.library.ID, err)
	}
	defer h.lock.Unlock()
	return fn()
}
