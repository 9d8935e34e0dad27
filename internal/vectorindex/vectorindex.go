// Package vectorindex defines the chunk similarity index used for
// retrieval. Every operation is keyed by an explicit scope (the session
// id); scopes are fully isolated from each other.
package vectorindex

import (
	"context"
	"errors"

	"github.com/docuchat/docuchat/internal/domain"
)

var (
	// ErrEmptyIndex is returned by Search when the scope has zero indexed
	// chunks. Callers treat this as "no knowledge base yet", not a crash.
	ErrEmptyIndex = errors.New("no chunks indexed for scope")
	// ErrDimensionMismatch is returned when a vector does not match the
	// dimension established for its scope.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Filter restricts a search to a set of documents. A nil filter or an
// empty DocumentIDs list means no restriction beyond the scope itself.
// The allowlist form (rather than a predicate) lets remote backends push
// the restriction down into their own query filters.
type Filter struct {
	DocumentIDs []string
}

func (f *Filter) allows(documentID string) bool {
	if f == nil || len(f.DocumentIDs) == 0 {
		return true
	}
	for _, id := range f.DocumentIDs {
		if id == documentID {
			return true
		}
	}
	return false
}

// Index stores chunk vectors and supports cosine nearest-neighbor search
// and deletion by document.
//
// Search results are deterministic: equal scores are broken by document
// id, then ordinal, ascending. Readers never observe a partially applied
// Add or Remove.
type Index interface {
	// Add registers chunks (with embeddings set) for similarity search.
	Add(ctx context.Context, scope string, chunks []domain.Chunk) error
	// RemoveByDocument deletes all chunks of the document, returning how
	// many were removed.
	RemoveByDocument(ctx context.Context, scope, documentID string) (int, error)
	// Search returns the k chunks most similar to the query vector.
	Search(ctx context.Context, scope string, vector []float32, k int, filter *Filter) ([]domain.ScoredChunk, error)
	// Clear removes every chunk in the scope.
	Clear(ctx context.Context, scope string) error
}
