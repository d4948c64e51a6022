// Package persist defines the durable storage boundary (spec §4.7): three
// logical collections — libraries, documents, chunks — written at
// single-record granularity with no global transaction.
package persist

import (
	"context"
	"time"

	"github.com/libracore/libracore/pkg/index"
)

// SchemaVersion is tagged onto every persisted record per spec §6.3.
const SchemaVersion = 1

// LibraryRecord is the durable form of a core.Library.
type LibraryRecord struct {
	Schema      int
	ID          string
	Name        string
	Dims        int
	IndexKind   index.Kind
	IndexParams index.Params
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentRecord is the durable form of a core.Document.
type DocumentRecord struct {
	Schema    int
	ID        string
	LibraryID string
	Title     string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChunkRecord is the durable form of a core.Chunk.
type ChunkRecord struct {
	Schema     int
	ID         string
	LibraryID  string
	DocumentID string
	Text       string
	Embedding  []float32
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Snapshot is the full state returned by LoadAll, used once at startup.
type Snapshot struct {
	Libraries []LibraryRecord
	Documents map[string][]DocumentRecord // keyed by library id
	Chunks    map[string][]ChunkRecord    // keyed by library id
}

// Adapter is the pluggable persistence boundary every durable store
// implements. An in-memory implementation suffices for tests.
type Adapter interface {
	SaveLibrary(ctx context.Context, rec LibraryRecord) error
	SaveDocument(ctx context.Context, rec DocumentRecord) error
	SaveChunk(ctx context.Context, rec ChunkRecord) error

	// DeleteLibrary cascades to the library's documents and chunks.
	DeleteLibrary(ctx context.Context, id string) error
	// DeleteDocument cascades to the document's chunks.
	DeleteDocument(ctx context.Context, libraryID, id string) error
	DeleteChunk(ctx context.Context, libraryID, id string) error

	// LoadAll returns the full snapshot used at startup by the recovery
	// orchestrator.
	LoadAll(ctx context.Context) (Snapshot, error)

	Close() error
}
