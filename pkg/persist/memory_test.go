package persist

import (
	"context"
	"testing"
	"time"

	"github.com/libracore/libracore/pkg/index"
)

func TestMemoryAdapterRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()

	now := time.Now().UTC()
	lib := LibraryRecord{
		ID: "lib-1", Name: "docs", Dims: 3, IndexKind: index.Flat,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := adapter.SaveLibrary(ctx, lib); err != nil {
		t.Fatalf("save library: %v", err)
	}

	doc := DocumentRecord{ID: "doc-1", LibraryID: "lib-1", Title: "t", CreatedAt: now, UpdatedAt: now}
	if err := adapter.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("save document: %v", err)
	}

	chunk := ChunkRecord{
		ID: "chunk-1", LibraryID: "lib-1", DocumentID: "doc-1",
		Text: "hello", Embedding: []float32{1, 2, 3}, CreatedAt: now, UpdatedAt: now,
	}
	if err := adapter.SaveChunk(ctx, chunk); err != nil {
		t.Fatalf("save chunk: %v", err)
	}

	snap, err := adapter.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(snap.Libraries) != 1 {
		t.Fatalf("expected 1 library, got %d", len(snap.Libraries))
	}
	if len(snap.Documents["lib-1"]) != 1 {
		t.Fatalf("expected 1 document, got %d", len(snap.Documents["lib-1"]))
	}
	if len(snap.Chunks["lib-1"]) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(snap.Chunks["lib-1"]))
	}
	got := snap.Chunks["lib-1"][0]
	if got.Text != "hello" || len(got.Embedding) != 3 {
		t.Fatalf("unexpected chunk: %+v", got)
	}
}

func TestMemoryAdapterDeleteLibraryCascades(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	now := time.Now().UTC()

	adapter.SaveLibrary(ctx, LibraryRecord{ID: "lib-1", Dims: 2, CreatedAt: now, UpdatedAt: now})
	adapter.SaveDocument(ctx, DocumentRecord{ID: "doc-1", LibraryID: "lib-1", CreatedAt: now, UpdatedAt: now})
	adapter.SaveChunk(ctx, ChunkRecord{ID: "chunk-1", LibraryID: "lib-1", DocumentID: "doc-1", Embedding: []float32{1, 2}, CreatedAt: now, UpdatedAt: now})

	if err := adapter.DeleteLibrary(ctx, "lib-1"); err != nil {
		t.Fatalf("delete library: %v", err)
	}

	snap, err := adapter.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(snap.Libraries) != 0 || len(snap.Documents["lib-1"]) != 0 || len(snap.Chunks["lib-1"]) != 0 {
		t.Fatalf("expected full cascade delete, got %+v", snap)
	}
}

func TestMemoryAdapterDeleteDocumentCascadesChunks(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	now := time.Now().UTC()

	adapter.SaveLibrary(ctx, LibraryRecord{ID: "lib-1", Dims: 2, CreatedAt: now, UpdatedAt: now})
	adapter.SaveDocument(ctx, DocumentRecord{ID: "doc-1", LibraryID: "lib-1", CreatedAt: now, UpdatedAt: now})
	adapter.SaveChunk(ctx, ChunkRecord{ID: "chunk-1", LibraryID: "lib-1", DocumentID: "doc-1", Embedding: []float32{1, 2}, CreatedAt: now, UpdatedAt: now})

	if err := adapter.DeleteDocument(ctx, "lib-1", "doc-1"); err != nil {
		t.Fatalf("delete document: %v", err)
	}

	snap, err := adapter.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(snap.Documents["lib-1"]) != 0 || len(snap.Chunks["lib-1"]) != 0 {
		t.Fatalf("expected document and its chunks removed, got %+v", snap)
	}
}
