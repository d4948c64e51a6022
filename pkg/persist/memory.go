package persist

import (
	"context"
	"sync"
)

// MemoryAdapter is a map-backed Adapter with no external dependency,
// sufficient for tests (spec §4.7).
type MemoryAdapter struct {
	mu        sync.Mutex
	libraries map[string]LibraryRecord
	documents map[string]DocumentRecord // keyed by document id
	chunks    map[string]ChunkRecord    // keyed by chunk id
}

// NewMemoryAdapter returns an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		libraries: make(map[string]LibraryRecord),
		documents: make(map[string]DocumentRecord),
		chunks:    make(map[string]ChunkRecord),
	}
}

func (a *MemoryAdapter) SaveLibrary(_ context.Context, rec LibraryRecord) error {
	rec.Schema = SchemaVersion
	a.mu.Lock()
	defer a.mu.Unlock()
	a.libraries[rec.ID] = rec
	return nil
}

func (a *MemoryAdapter) SaveDocument(_ context.Context, rec DocumentRecord) error {
	rec.Schema = SchemaVersion
	a.mu.Lock()
	defer a.mu.Unlock()
	a.documents[rec.ID] = rec
	return nil
}

func (a *MemoryAdapter) SaveChunk(_ context.Context, rec ChunkRecord) error {
	rec.Schema = SchemaVersion
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks[rec.ID] = rec
	return nil
}

func (a *MemoryAdapter) DeleteLibrary(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.libraries, id)
	for docID, d := range a.documents {
		if d.LibraryID == id {
			delete(a.documents, docID)
		}
	}
	for chunkID, c := range a.chunks {
		if c.LibraryID == id {
			delete(a.chunks, chunkID)
		}
	}
	return nil
}

func (a *MemoryAdapter) DeleteDocument(_ context.Context, libraryID, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.documents, id)
	for chunkID, c := range a.chunks {
		if c.LibraryID == libraryID && c.DocumentID == id {
			delete(a.chunks, chunkID)
		}
	}
	return nil
}

func (a *MemoryAdapter) DeleteChunk(_ context.Context, libraryID, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.chunks, id)
	return nil
}

func (a *MemoryAdapter) LoadAll(_ context.Context) (Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Documents: make(map[string][]DocumentRecord),
		Chunks:    make(map[string][]ChunkRecord),
	}
	for _, lib := range a.libraries {
		snap.Libraries = append(snap.Libraries, lib)
	}
	for _, d := range a.documents {
		snap.Documents[d.LibraryID] = append(snap.Documents[d.LibraryID], d)
	}
	for _, c := range a.chunks {
		snap.Chunks[c.LibraryID] = append(snap.Chunks[c.LibraryID], c)
	}
	return snap, nil
}

func (a *MemoryAdapter) Close() error { return nil }
