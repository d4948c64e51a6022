package core

import (
	"time"

	"github.com/libracore/libracore/pkg/index"
)

// Library is a namespace with a fixed dimension and index kind, owning a
// set of documents and chunks and a single index (spec §3).
type Library struct {
	ID          string
	Name        string
	Dims        int
	IndexKind   index.Kind
	IndexParams index.Params
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Document owns a set of chunks within exactly one library.
type Document struct {
	ID        string
	LibraryID string
	Title     string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is a text fragment plus its embedding, the unit of indexing and
// retrieval.
type Chunk struct {
	ID         string
	LibraryID  string
	DocumentID string
	Text       string
	Embedding  []float32
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ScoredChunk pairs a Chunk with its similarity score from a Search call.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// LibraryStats is the result of Service.Stats.
type LibraryStats struct {
	NDocuments int
	NChunks    int
	Index      index.Stats
}
