package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/libracore/libracore/pkg/index"
	"github.com/libracore/libracore/pkg/persist"
)

// Service is the facade every external surface (CLI, eventual HTTP
// layer) calls through: library/document/chunk CRUD plus search, train,
// rebuild, and stats, each composed from a libraryHandle, the
// persistence Adapter, and an Embedder (spec §4.6).
type Service struct {
	store     *libraryStore
	persist   persist.Adapter
	embedder  Embedder
	logger    Logger
	serving   atomic.Bool
}

// NewService runs recovery against adapter and, once every library
// handle is rebuilt, returns a Service ready to accept requests. Calls
// made before recovery finishes are impossible by construction — the
// constructor blocks until Recover returns.
func NewService(ctx context.Context, adapter persist.Adapter, embedder Embedder, logger Logger) (*Service, error) {
	if logger == nil {
		logger = NopLogger()
	}
	if embedder == nil {
		embedder = NopEmbedder{}
	}

	store, err := Recover(ctx, adapter, logger)
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}

	s := &Service{store: store, persist: adapter, embedder: embedder, logger: logger}
	s.serving.Store(true)
	return s, nil
}

func (s *Service) checkServing(op string) error {
	if !s.serving.Load() {
		return wrapErr(Unavailable, op, "", ErrUnavailable)
	}
	return nil
}

func (s *Service) getHandle(op, libraryID string) (*libraryHandle, error) {
	h, ok := s.store.get(libraryID)
	if !ok {
		return nil, wrapErr(NotFound, op, libraryID, fmt.Errorf("%w: library %s", ErrNotFound, libraryID))
	}
	return h, nil
}

// --- Library ---

// CreateLibrary validates name/dims/kind/params (via index.New), builds
// the library's index and handle, persists it, and registers it.
func (s *Service) CreateLibrary(ctx context.Context, name string, dims int, kind index.Kind, params index.Params, metadata map[string]string) (Library, error) {
	const op = "create_library"
	if err := s.checkServing(op); err != nil {
		return Library{}, err
	}
	if name == "" {
		return Library{}, wrapErr(Validation, op, "", fmt.Errorf("%w: name is required", ErrInvalidParams))
	}

	now := time.Now().UTC()
	lib := Library{
		ID:          uuid.NewString(),
		Name:        name,
		Dims:        dims,
		IndexKind:   kind,
		IndexParams: params,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	handle, err := newLibraryHandle(lib)
	if err != nil {
		return Library{}, wrapErr(Validation, op, "", err)
	}

	if err := s.persist.SaveLibrary(ctx, toLibraryRecord(lib)); err != nil {
		return Library{}, wrapErr(Upstream, op, lib.ID, err)
	}

	s.store.put(handle)
	return lib, nil
}

// GetLibrary returns the library entity, not its documents or chunks.
func (s *Service) GetLibrary(ctx context.Context, libraryID string) (Library, error) {
	const op = "get_library"
	if err := s.checkServing(op); err != nil {
		return Library{}, err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return Library{}, err
	}

	var lib Library
	err = h.withReader(ctx, func() error {
		lib = h.library
		return nil
	})
	return lib, err
}

// ListLibraries returns every registered library entity.
func (s *Service) ListLibraries(ctx context.Context) ([]Library, error) {
	const op = "list_libraries"
	if err := s.checkServing(op); err != nil {
		return nil, err
	}
	handles := s.store.list()
	libs := make([]Library, 0, len(handles))
	for _, h := range handles {
		var lib Library
		if err := h.withReader(ctx, func() error {
			lib = h.library
			return nil
		}); err != nil {
			return nil, err
		}
		libs = append(libs, lib)
	}
	return libs, nil
}

// UpdateLibrary replaces a library's name and/or metadata (nil leaves a
// field unchanged). dims and index_kind are immutable after creation
// (spec §3): passing either as non-nil and different from the stored
// value is rejected rather than silently ignored, matching the PATCH
// semantics in spec §6.1 ("name/metadata only").
func (s *Service) UpdateLibrary(ctx context.Context, libraryID string, name *string, metadata map[string]string, dims *int, kind *index.Kind) (Library, error) {
	const op = "update_library"
	if err := s.checkServing(op); err != nil {
		return Library{}, err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return Library{}, err
	}

	var updated Library
	err = h.withWriter(ctx, func() error {
		if dims != nil && *dims != h.library.Dims {
			return wrapErr(Conflict, op, libraryID, fmt.Errorf("%w: dims", ErrImmutable))
		}
		if kind != nil && *kind != h.library.IndexKind {
			return wrapErr(Conflict, op, libraryID, fmt.Errorf("%w: index_kind", ErrImmutable))
		}

		previous := h.library
		if name != nil {
			h.library.Name = *name
		}
		if metadata != nil {
			h.library.Metadata = metadata
		}
		h.library.UpdatedAt = time.Now().UTC()

		if err := s.persist.SaveLibrary(ctx, toLibraryRecord(h.library)); err != nil {
			h.library = previous
			return wrapErr(Upstream, op, libraryID, err)
		}
		updated = h.library
		return nil
	})
	return updated, err
}

// DeleteLibrary removes the library and, by cascade, all its documents
// and chunks.
func (s *Service) DeleteLibrary(ctx context.Context, libraryID string) error {
	const op = "delete_library"
	if err := s.checkServing(op); err != nil {
		return err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return err
	}

	err = h.withWriter(ctx, func() error {
		if err := s.persist.DeleteLibrary(ctx, libraryID); err != nil {
			return wrapErr(Upstream, op, libraryID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.store.delete(libraryID)
	return nil
}

// --- Document ---

// CreateDocument adds a document to an existing library.
func (s *Service) CreateDocument(ctx context.Context, libraryID, title string, metadata map[string]string) (Document, error) {
	const op = "create_document"
	if err := s.checkServing(op); err != nil {
		return Document{}, err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return Document{}, err
	}

	var doc Document
	err = h.withWriter(ctx, func() error {
		now := time.Now().UTC()
		doc = Document{
			ID:        uuid.NewString(),
			LibraryID: libraryID,
			Title:     title,
			Metadata:  metadata,
			CreatedAt: now,
			UpdatedAt: now,
		}
		h.documents[doc.ID] = doc

		if err := s.persist.SaveDocument(ctx, toDocumentRecord(doc)); err != nil {
			delete(h.documents, doc.ID)
			return wrapErr(Upstream, op, libraryID, err)
		}
		return nil
	})
	return doc, err
}

// UpdateDocument replaces a document's title and metadata.
func (s *Service) UpdateDocument(ctx context.Context, libraryID, documentID, title string, metadata map[string]string) (Document, error) {
	const op = "update_document"
	if err := s.checkServing(op); err != nil {
		return Document{}, err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return Document{}, err
	}

	var updated Document
	err = h.withWriter(ctx, func() error {
		previous, ok := h.documents[documentID]
		if !ok {
			return wrapErr(NotFound, op, libraryID, fmt.Errorf("%w: document %s", ErrNotFound, documentID))
		}

		doc := previous
		doc.Title = title
		doc.Metadata = metadata
		doc.UpdatedAt = time.Now().UTC()
		h.documents[documentID] = doc

		if err := s.persist.SaveDocument(ctx, toDocumentRecord(doc)); err != nil {
			h.documents[documentID] = previous
			return wrapErr(Upstream, op, libraryID, err)
		}
		updated = doc
		return nil
	})
	return updated, err
}

// DeleteDocument removes a document and, by cascade, its chunks from
// both the index and the chunk map.
func (s *Service) DeleteDocument(ctx context.Context, libraryID, documentID string) error {
	const op = "delete_document"
	if err := s.checkServing(op); err != nil {
		return err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return err
	}

	return h.withWriter(ctx, func() error {
		doc, ok := h.documents[documentID]
		if !ok {
			return wrapErr(NotFound, op, libraryID, fmt.Errorf("%w: document %s", ErrNotFound, documentID))
		}

		type removed struct {
			chunk Chunk
		}
		var removedChunks []removed
		for id, c := range h.chunks {
			if c.DocumentID == documentID {
				removedChunks = append(removedChunks, removed{chunk: c})
				h.idx.Remove(id)
				delete(h.chunks, id)
			}
		}
		delete(h.documents, documentID)

		if err := s.persist.DeleteDocument(ctx, libraryID, documentID); err != nil {
			h.documents[documentID] = doc
			for _, r := range removedChunks {
				h.chunks[r.chunk.ID] = r.chunk
				if addErr := h.idx.Add(r.chunk.ID, r.chunk.Embedding); addErr != nil {
					WithOp(s.logger, op, libraryID).Warn("failed to restore chunk into index during rollback",
						"chunk", r.chunk.ID, "error", addErr)
				}
			}
			wrapped := wrapErr(Upstream, op, libraryID, err)
			LogCoreError(s.logger, wrapped)
			return wrapped
		}
		return nil
	})
}

// --- Chunk ---

// CreateChunk validates and inserts a single chunk, adding it to the
// library's index before persisting it.
func (s *Service) CreateChunk(ctx context.Context, libraryID, documentID, text string, embedding []float32, metadata map[string]string) (Chunk, error) {
	const op = "create_chunk"
	if err := s.checkServing(op); err != nil {
		return Chunk{}, err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return Chunk{}, err
	}

	var chunk Chunk
	err = h.withWriter(ctx, func() error {
		if err := h.validateChunkLocked(documentID, embedding); err != nil {
			return wrapErr(Validation, op, libraryID, err)
		}

		now := time.Now().UTC()
		chunk = Chunk{
			ID:         uuid.NewString(),
			LibraryID:  libraryID,
			DocumentID: documentID,
			Text:       text,
			Embedding:  embedding,
			Metadata:   metadata,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		h.chunks[chunk.ID] = chunk
		if err := h.idx.Add(chunk.ID, chunk.Embedding); err != nil {
			delete(h.chunks, chunk.ID)
			return wrapErr(State, op, libraryID, err)
		}

		if err := s.persist.SaveChunk(ctx, toChunkRecord(chunk)); err != nil {
			h.idx.Remove(chunk.ID)
			delete(h.chunks, chunk.ID)
			return wrapErr(Upstream, op, libraryID, err)
		}
		return nil
	})
	return chunk, err
}

// NewChunkInput is one element of a CreateChunksBatch call.
type NewChunkInput struct {
	DocumentID string
	Text       string
	Embedding  []float32
	Metadata   map[string]string
}

// CreateChunksBatch inserts every chunk under one writer lock. If any
// chunk fails validation, indexing, or persistence, the whole batch is
// rolled back and no chunk is added (spec §4.6 atomic batch insert).
func (s *Service) CreateChunksBatch(ctx context.Context, libraryID string, inputs []NewChunkInput) ([]Chunk, error) {
	const op = "create_chunks_batch"
	if err := s.checkServing(op); err != nil {
		return nil, err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	err = h.withWriter(ctx, func() error {
		for _, in := range inputs {
			if err := h.validateChunkLocked(in.DocumentID, in.Embedding); err != nil {
				return wrapErr(Validation, op, libraryID, fmt.Errorf("document %s: %w", in.DocumentID, err))
			}
		}

		now := time.Now().UTC()
		built := make([]Chunk, 0, len(inputs))
		for _, in := range inputs {
			built = append(built, Chunk{
				ID:         uuid.NewString(),
				LibraryID:  libraryID,
				DocumentID: in.DocumentID,
				Text:       in.Text,
				Embedding:  in.Embedding,
				Metadata:   in.Metadata,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}

		added := make([]Chunk, 0, len(built))
		persisted := make([]Chunk, 0, len(built))
		rollback := func() {
			for _, c := range persisted {
				if delErr := s.persist.DeleteChunk(ctx, libraryID, c.ID); delErr != nil {
					LogCoreError(s.logger, wrapErr(Upstream, op, libraryID, fmt.Errorf("rollback chunk %s: %w", c.ID, delErr)))
				}
			}
			for _, c := range added {
				h.idx.Remove(c.ID)
				delete(h.chunks, c.ID)
			}
		}

		for _, c := range built {
			h.chunks[c.ID] = c
			if err := h.idx.Add(c.ID, c.Embedding); err != nil {
				delete(h.chunks, c.ID)
				rollback()
				return wrapErr(State, op, libraryID, err)
			}
			added = append(added, c)
		}

		for _, c := range built {
			if err := s.persist.SaveChunk(ctx, toChunkRecord(c)); err != nil {
				rollback()
				return wrapErr(Upstream, op, libraryID, err)
			}
			persisted = append(persisted, c)
		}

		chunks = built
		return nil
	})
	return chunks, err
}

// UpdateChunk replaces a chunk's text, embedding, and metadata,
// reindexing it in place.
func (s *Service) UpdateChunk(ctx context.Context, libraryID, chunkID, text string, embedding []float32, metadata map[string]string) (Chunk, error) {
	const op = "update_chunk"
	if err := s.checkServing(op); err != nil {
		return Chunk{}, err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return Chunk{}, err
	}

	var updated Chunk
	err = h.withWriter(ctx, func() error {
		previous, ok := h.chunks[chunkID]
		if !ok {
			return wrapErr(NotFound, op, libraryID, fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID))
		}
		if err := h.validateChunkLocked(previous.DocumentID, embedding); err != nil {
			return wrapErr(Validation, op, libraryID, err)
		}

		chunk := previous
		chunk.Text = text
		chunk.Embedding = embedding
		chunk.Metadata = metadata
		chunk.UpdatedAt = time.Now().UTC()

		h.chunks[chunkID] = chunk
		if err := h.idx.Add(chunkID, chunk.Embedding); err != nil {
			h.chunks[chunkID] = previous
			return wrapErr(State, op, libraryID, err)
		}

		if err := s.persist.SaveChunk(ctx, toChunkRecord(chunk)); err != nil {
			h.chunks[chunkID] = previous
			if addErr := h.idx.Add(chunkID, previous.Embedding); addErr != nil {
				WithOp(s.logger, op, libraryID).Warn("failed to restore previous chunk vector during rollback",
					"chunk", chunkID, "error", addErr)
			}
			wrapped := wrapErr(Upstream, op, libraryID, err)
			LogCoreError(s.logger, wrapped)
			return wrapped
		}
		updated = chunk
		return nil
	})
	return updated, err
}

// DeleteChunk removes a chunk from both the index and the chunk map.
func (s *Service) DeleteChunk(ctx context.Context, libraryID, chunkID string) error {
	const op = "delete_chunk"
	if err := s.checkServing(op); err != nil {
		return err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return err
	}

	return h.withWriter(ctx, func() error {
		chunk, ok := h.chunks[chunkID]
		if !ok {
			return wrapErr(NotFound, op, libraryID, fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID))
		}

		h.idx.Remove(chunkID)
		delete(h.chunks, chunkID)

		if err := s.persist.DeleteChunk(ctx, libraryID, chunkID); err != nil {
			h.chunks[chunkID] = chunk
			if addErr := h.idx.Add(chunkID, chunk.Embedding); addErr != nil {
				WithOp(s.logger, op, libraryID).Warn("failed to restore chunk into index during rollback",
					"chunk", chunkID, "error", addErr)
			}
			wrapped := wrapErr(Upstream, op, libraryID, err)
			LogCoreError(s.logger, wrapped)
			return wrapped
		}
		return nil
	})
}

// --- Search, train, rebuild, stats ---

const (
	minK = 1
	maxK = 1000
)

func clampK(k int) int {
	if k < minK {
		return minK
	}
	if k > maxK {
		return maxK
	}
	return k
}

// Search ranks the library's chunks against query and returns up to k
// of them, descending by cosine similarity (spec §4.6).
func (s *Service) Search(ctx context.Context, libraryID string, query []float32, k int) ([]ScoredChunk, error) {
	const op = "search"
	if err := s.checkServing(op); err != nil {
		return nil, err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return nil, err
	}

	k = clampK(k)
	var scored []ScoredChunk
	err = h.withReader(ctx, func() error {
		if len(query) != h.library.Dims {
			return wrapErr(Validation, op, libraryID, fmt.Errorf("%w: expected %d, got %d", ErrDimMismatch, h.library.Dims, len(query)))
		}

		results, err := h.idx.Search(query, k)
		if err != nil {
			return wrapErr(State, op, libraryID, err)
		}

		scored = make([]ScoredChunk, 0, len(results))
		for _, r := range results {
			chunk, ok := h.chunks[r.ID]
			if !ok {
				continue
			}
			scored = append(scored, ScoredChunk{Chunk: chunk, Score: r.Score})
		}
		return nil
	})
	return scored, err
}

// SearchText embeds text before acquiring any library lock, then
// delegates to Search. This is the one place the spec's Open Question
// about lock placement around the embedding call is resolved: the
// embedding call always happens first.
func (s *Service) SearchText(ctx context.Context, libraryID, text string, k int) ([]ScoredChunk, error) {
	const op = "search_text"
	if err := s.checkServing(op); err != nil {
		return nil, err
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, wrapErr(Upstream, op, libraryID, err)
	}
	return s.Search(ctx, libraryID, vector, k)
}

// CreateChunkFromText embeds text before acquiring any library lock,
// then delegates to CreateChunk. Same Open Question resolution as
// SearchText: the embedding call always happens first.
func (s *Service) CreateChunkFromText(ctx context.Context, libraryID, documentID, text string, metadata map[string]string) (Chunk, error) {
	const op = "create_chunk_from_text"
	if err := s.checkServing(op); err != nil {
		return Chunk{}, err
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return Chunk{}, wrapErr(Upstream, op, libraryID, err)
	}
	return s.CreateChunk(ctx, libraryID, documentID, text, vector, metadata)
}

// Train fits the library's index from its current chunks. Only IVF
// requires training; calling it on FLAT or LSH-SimHash is rejected
// rather than silently accepted, so a caller can't mistake the no-op for
// a real fit (spec §7, §6.1's "IVF only; 400 otherwise").
func (s *Service) Train(ctx context.Context, libraryID string) error {
	const op = "train"
	if err := s.checkServing(op); err != nil {
		return err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return err
	}

	return h.withWriter(ctx, func() error {
		if h.library.IndexKind != index.IVF {
			return wrapErr(State, op, libraryID, fmt.Errorf("%w: train is IVF-only, library uses %s", ErrUnsupported, h.library.IndexKind))
		}
		if err := h.idx.Train(h.chunkSnapshotLocked()); err != nil {
			return wrapErr(State, op, libraryID, err)
		}
		return nil
	})
}

// Rebuild drops and repopulates the library's index from its current
// chunks, retraining first if the kind requires it.
func (s *Service) Rebuild(ctx context.Context, libraryID string) error {
	const op = "rebuild"
	if err := s.checkServing(op); err != nil {
		return err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return err
	}

	return h.withWriter(ctx, func() error {
		if err := h.idx.Rebuild(h.chunkSnapshotLocked()); err != nil {
			return wrapErr(State, op, libraryID, err)
		}
		return nil
	})
}

// Stats reports document/chunk counts and the index's own Stats.
func (s *Service) Stats(ctx context.Context, libraryID string) (LibraryStats, error) {
	const op = "stats"
	if err := s.checkServing(op); err != nil {
		return LibraryStats{}, err
	}
	h, err := s.getHandle(op, libraryID)
	if err != nil {
		return LibraryStats{}, err
	}

	var stats LibraryStats
	err = h.withReader(ctx, func() error {
		stats = LibraryStats{
			NDocuments: len(h.documents),
			NChunks:    len(h.chunks),
			Index:      h.idx.Stats(),
		}
		return nil
	})
	return stats, err
}

// --- record <-> entity mapping ---

func toLibraryRecord(lib Library) persist.LibraryRecord {
	return persist.LibraryRecord{
		Schema:      persist.SchemaVersion,
		ID:          lib.ID,
		Name:        lib.Name,
		Dims:        lib.Dims,
		IndexKind:   lib.IndexKind,
		IndexParams: lib.IndexParams,
		Metadata:    lib.Metadata,
		CreatedAt:   lib.CreatedAt,
		UpdatedAt:   lib.UpdatedAt,
	}
}

func toDocumentRecord(doc Document) persist.DocumentRecord {
	return persist.DocumentRecord{
		Schema:    persist.SchemaVersion,
		ID:        doc.ID,
		LibraryID: doc.LibraryID,
		Title:     doc.Title,
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func toChunkRecord(chunk Chunk) persist.ChunkRecord {
	return persist.ChunkRecord{
		Schema:     persist.SchemaVersion,
		ID:         chunk.ID,
		LibraryID:  chunk.LibraryID,
		DocumentID: chunk.DocumentID,
		Text:       chunk.Text,
		Embedding:  chunk.Embedding,
		Metadata:   chunk.Metadata,
		CreatedAt:  chunk.CreatedAt,
		UpdatedAt:  chunk.UpdatedAt,
	}
}
