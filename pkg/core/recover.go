package core

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/libracore/libracore/pkg/index"
	"github.com/libracore/libracore/pkg/persist"
)

// Recover loads the persisted snapshot and rebuilds an in-memory
// libraryStore from it (spec §4.8). Per-library handle construction is
// independent, so it fans out across an errgroup; the service is only
// safe to serve traffic once Recover returns without error.
func Recover(ctx context.Context, adapter persist.Adapter, logger Logger) (*libraryStore, error) {
	if logger == nil {
		logger = NopLogger()
	}

	snapshot, err := adapter.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	store := newLibraryStore()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, libRec := range snapshot.Libraries {
		libRec := libRec
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			handle, err := rebuildHandle(libRec, snapshot, logger)
			if err != nil {
				return fmt.Errorf("rebuild library %s: %w", libRec.ID, err)
			}
			store.put(handle)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	logger.Info("recovery complete", "libraries", len(snapshot.Libraries))
	return store, nil
}

func rebuildHandle(libRec persist.LibraryRecord, snapshot persist.Snapshot, logger Logger) (*libraryHandle, error) {
	lib := Library{
		ID:          libRec.ID,
		Name:        libRec.Name,
		Dims:        libRec.Dims,
		IndexKind:   libRec.IndexKind,
		IndexParams: libRec.IndexParams,
		Metadata:    libRec.Metadata,
		CreatedAt:   libRec.CreatedAt,
		UpdatedAt:   libRec.UpdatedAt,
	}

	handle, err := newLibraryHandle(lib)
	if err != nil {
		return nil, err
	}

	for _, docRec := range snapshot.Documents[libRec.ID] {
		handle.documents[docRec.ID] = Document{
			ID:        docRec.ID,
			LibraryID: docRec.LibraryID,
			Title:     docRec.Title,
			Metadata:  docRec.Metadata,
			CreatedAt: docRec.CreatedAt,
			UpdatedAt: docRec.UpdatedAt,
		}
	}

	entries := make(map[string][]float32, len(snapshot.Chunks[libRec.ID]))
	for _, chunkRec := range snapshot.Chunks[libRec.ID] {
		handle.chunks[chunkRec.ID] = Chunk{
			ID:         chunkRec.ID,
			LibraryID:  chunkRec.LibraryID,
			DocumentID: chunkRec.DocumentID,
			Text:       chunkRec.Text,
			Embedding:  chunkRec.Embedding,
			Metadata:   chunkRec.Metadata,
			CreatedAt:  chunkRec.CreatedAt,
			UpdatedAt:  chunkRec.UpdatedAt,
		}
		entries[chunkRec.ID] = chunkRec.Embedding
	}

	if len(entries) == 0 {
		return handle, nil
	}

	if err := handle.idx.Rebuild(entries); err != nil {
		if errors.Is(err, index.ErrInsufficientData) {
			logger.Warn("library recovered untrained: insufficient chunks to train",
				"library", libRec.ID, "chunks", len(entries))
			return handle, nil
		}
		return nil, err
	}
	return handle, nil
}
