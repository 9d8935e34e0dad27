package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/docuchat/docuchat/internal/domain"
)

// Memory is a brute-force in-process cosine index. It is the default
// backend: fully deterministic and needing no external service.
//
// Vectors are L2-normalized at insert time so similarity reduces to a dot
// product. Each scope has its own lock, so ingestion into one session
// never blocks searches in another.
type Memory struct {
	mu     sync.Mutex
	scopes map[string]*memoryScope
}

type memoryScope struct {
	mu     sync.RWMutex
	dim    int
	chunks []domain.Chunk
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{scopes: make(map[string]*memoryScope)}
}

func (m *Memory) scope(name string, create bool) *memoryScope {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scopes[name]
	if !ok && create {
		s = &memoryScope{}
		m.scopes[name] = s
	}
	return s
}

// Add registers chunks for similarity search. The first add to a scope
// fixes its vector dimension.
func (m *Memory) Add(_ context.Context, scope string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s := m.scope(scope, true)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if s.dim == 0 {
			s.dim = len(c.Embedding)
		}
		if len(c.Embedding) != s.dim {
			return fmt.Errorf("%w: chunk %s has %d dimensions, scope expects %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), s.dim)
		}
	}

	for _, c := range chunks {
		c.Embedding = normalize(c.Embedding)
		s.chunks = append(s.chunks, c)
	}
	return nil
}

// RemoveByDocument deletes every chunk owned by documentID.
func (m *Memory) RemoveByDocument(_ context.Context, scope, documentID string) (int, error) {
	s := m.scope(scope, false)
	if s == nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0]
	removed := 0
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	return removed, nil
}

// Search returns the k most similar chunks, scores descending. Ties are
// broken by document id then ordinal so repeated calls are identical.
func (m *Memory) Search(_ context.Context, scope string, vector []float32, k int, filter *Filter) ([]domain.ScoredChunk, error) {
	s := m.scope(scope, false)
	if s == nil {
		return nil, ErrEmptyIndex
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, scope expects %d",
			ErrDimensionMismatch, len(vector), s.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	query := normalize(vector)
	results := make([]domain.ScoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if !filter.allows(c.DocumentID) {
			continue
		}
		results = append(results, domain.ScoredChunk{Chunk: c, Score: dot(c.Embedding, query)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.DocumentID != results[j].Chunk.DocumentID {
			return results[i].Chunk.DocumentID < results[j].Chunk.DocumentID
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Clear removes every chunk in the scope.
func (m *Memory) Clear(_ context.Context, scope string) error {
	s := m.scope(scope, false)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.dim = 0
	return nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return append([]float32(nil), v...)
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
