package core

import (
	"context"
	"errors"
)

var errEmbedderNotConfigured = errors.New("no embedder configured")

// Embedder is the external text-to-vector collaborator (spec §6.2). It is
// never called while a library lock is held — SearchText and
// CreateChunkFromText resolve text to a vector before entering any
// critical section.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NopEmbedder is a test double that always fails; it exists so callers
// that never exercise text-to-vector paths don't need a real Embedder.
type NopEmbedder struct{}

func (NopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, wrapErr(Upstream, "embed", "", errEmbedderNotConfigured)
}
