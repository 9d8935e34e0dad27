// Package retriever turns a question into a ranked set of candidate
// chunks: embed the question, then search the vector index scoped to the
// session's documents.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/embedding"
	"github.com/docuchat/docuchat/internal/knowledge"
	"github.com/docuchat/docuchat/internal/vectorindex"
)

var (
	// ErrNoDocuments is returned when the session has nothing indexed.
	// Callers get this instead of a query against an empty index.
	ErrNoDocuments = errors.New("session has no documents")
	// ErrEmptyQuestion rejects blank questions before any work is done.
	ErrEmptyQuestion = errors.New("question is empty")
)

// DefaultK is how many chunks a retrieval returns unless overridden.
const DefaultK = 4

// Retriever produces ranked chunks for a question.
type Retriever struct {
	embedder embedding.Embedder
	index    vectorindex.Index
	kb       *knowledge.Manager
	defaultK int
}

// New creates a Retriever. k <= 0 selects DefaultK.
func New(embedder embedding.Embedder, index vectorindex.Index, kb *knowledge.Manager, k int) *Retriever {
	if k <= 0 {
		k = DefaultK
	}
	return &Retriever{embedder: embedder, index: index, kb: kb, defaultK: k}
}

// Retrieve returns the top-k chunks for the question, scoped to the
// session's documents and deterministically ordered. k <= 0 selects the
// retriever's default.
func (r *Retriever) Retrieve(ctx context.Context, question, sessionID string, k int) ([]domain.ScoredChunk, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if k <= 0 {
		k = r.defaultK
	}

	scope := knowledge.Scope(sessionID)
	docs, err := r.kb.List(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	docIDs := make([]string, len(docs))
	for i, doc := range docs {
		docIDs[i] = doc.ID
	}

	matches, err := r.index.Search(ctx, scope, vector, k, &vectorindex.Filter{DocumentIDs: docIDs})
	if err != nil {
		if errors.Is(err, vectorindex.ErrEmptyIndex) {
			return nil, ErrNoDocuments
		}
		return nil, fmt.Errorf("search index: %w", err)
	}
	return matches, nil
}
