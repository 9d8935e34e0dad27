//go:build integration

package qdrant

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/vectorindex"
)

const testDimension = 4

// setupTestIndex connects to a local Qdrant and ensures the collection
// exists. Skips the test if Qdrant is not running.
func setupTestIndex(t *testing.T) *Index {
	idx, err := New("localhost", 6334, testDimension)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	err = idx.EnsureCollection(context.Background())
	require.NoError(t, err, "Failed to ensure collection")

	return idx
}

func testChunk(docID string, ordinal int, vec []float32) domain.Chunk {
	return domain.Chunk{
		ID:         uuid.New().String(),
		DocumentID: docID,
		Ordinal:    ordinal,
		Page:       ordinal + 1,
		Text:       "chunk text",
		Embedding:  vec,
	}
}

func TestAddAndSearch(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	scope := uuid.New().String()
	docID := uuid.New().String()

	chunks := []domain.Chunk{
		testChunk(docID, 0, []float32{1, 0, 0, 0}),
		testChunk(docID, 1, []float32{0, 1, 0, 0}),
	}
	require.NoError(t, idx.Add(ctx, scope, chunks))

	// Upserts are not synchronous; give Qdrant a moment to index.
	time.Sleep(500 * time.Millisecond)

	matches, err := idx.Search(ctx, scope, []float32{1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, chunks[0].ID, matches[0].Chunk.ID)
	assert.Equal(t, docID, matches[0].Chunk.DocumentID)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	require.NoError(t, idx.Clear(ctx, scope))
}

func TestSearchDocumentFilter(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	scope := uuid.New().String()
	docA := uuid.New().String()
	docB := uuid.New().String()

	require.NoError(t, idx.Add(ctx, scope, []domain.Chunk{
		testChunk(docA, 0, []float32{1, 0, 0, 0}),
		testChunk(docB, 0, []float32{1, 0, 0, 0}),
	}))
	time.Sleep(500 * time.Millisecond)

	matches, err := idx.Search(ctx, scope, []float32{1, 0, 0, 0}, 10,
		&vectorindex.Filter{DocumentIDs: []string{docB}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, docB, matches[0].Chunk.DocumentID)

	require.NoError(t, idx.Clear(ctx, scope))
}

func TestRemoveByDocument(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	scope := uuid.New().String()
	keep := uuid.New().String()
	gone := uuid.New().String()

	require.NoError(t, idx.Add(ctx, scope, []domain.Chunk{
		testChunk(keep, 0, []float32{1, 0, 0, 0}),
		testChunk(gone, 0, []float32{0, 1, 0, 0}),
		testChunk(gone, 1, []float32{0, 0, 1, 0}),
	}))
	time.Sleep(500 * time.Millisecond)

	removed, err := idx.RemoveByDocument(ctx, scope, gone)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	time.Sleep(500 * time.Millisecond)
	matches, err := idx.Search(ctx, scope, []float32{1, 0, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, keep, matches[0].Chunk.DocumentID)

	require.NoError(t, idx.Clear(ctx, scope))
}

func TestSearchEmptyScope(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	_, err := idx.Search(context.Background(), uuid.New().String(), []float32{1, 0, 0, 0}, 4, nil)
	assert.ErrorIs(t, err, vectorindex.ErrEmptyIndex)
}

func TestDimensionMismatch(t *testing.T) {
	idx := setupTestIndex(t)
	defer idx.Close()

	ctx := context.Background()
	scope := uuid.New().String()

	err := idx.Add(ctx, scope, []domain.Chunk{testChunk(uuid.New().String(), 0, []float32{1, 0})})
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)

	_, err = idx.Search(ctx, scope, []float32{1, 0}, 4, nil)
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}
