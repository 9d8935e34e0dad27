// Package qdrant provides a durable vector index backend. Chunk records
// survive restarts; session and document scoping are pushed down into
// Qdrant payload filters.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/vectorindex"
)

// CollectionName is the single collection holding all chunk points.
const CollectionName = "chunks"

// Index wraps the Qdrant client with connection management and health
// checks. It implements vectorindex.Index.
type Index struct {
	client    *qdrant.Client
	dimension uint64
}

// New creates a Qdrant-backed index and validates connectivity. It fails
// fast if Qdrant is unreachable after a bounded backoff.
func New(host string, port int, dimension int) (*Index, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	idx := &Index{client: client, dimension: uint64(dimension)}

	if err := idx.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant unreachable: %w", err)
	}
	return idx, nil
}

// healthCheckWithRetry probes Qdrant with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (x *Index) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return x.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (x *Index) Health(ctx context.Context) error {
	result, err := x.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the chunks collection and its payload indexes
// if they do not exist yet. Idempotent.
func (x *Index) EnsureCollection(ctx context.Context) error {
	collections, err := x.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == CollectionName {
			return nil
		}
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     x.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// Without these indexes, session and document filtering degrades to a
	// full scan.
	for _, field := range []string{"session_id", "document_id"} {
		_, err := x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: CollectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create index for field %s: %w", field, err)
		}
	}
	return nil
}

// Close closes the client connection.
func (x *Index) Close() error {
	if x.client != nil {
		return x.client.Close()
	}
	return nil
}

// Add upserts chunk points in batches of 100, retrying transient failures
// with exponential backoff.
func (x *Index) Add(ctx context.Context, scope string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, c := range chunks {
		if uint64(len(c.Embedding)) != x.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				vectorindex.ErrDimensionMismatch, i, len(c.Embedding), x.dimension)
		}
	}

	const batchSize = 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		batch := chunks[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, c := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(c.ID),
				Vectors: qdrant.NewVectors(c.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"session_id":   scope,
					"document_id":  c.DocumentID,
					"ordinal":      c.Ordinal,
					"page":         c.Page,
					"text":         c.Text,
					"start_offset": c.StartOffset,
					"end_offset":   c.EndOffset,
				}),
			}
		}

		if err := x.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (x *Index) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// RemoveByDocument deletes all points of the document within the scope.
func (x *Index) RemoveByDocument(ctx context.Context, scope, documentID string) (int, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("session_id", scope),
			qdrant.NewMatch("document_id", documentID),
		},
	}

	count, err := x.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: CollectionName,
		Filter:         filter,
	})
	if err != nil {
		return 0, fmt.Errorf("count document chunks: %w", err)
	}

	_, err = x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("delete document chunks: %w", err)
	}
	return int(count), nil
}

// Search queries the k nearest chunks within the scope. Equal scores are
// re-sorted by document id then ordinal so results stay deterministic
// across calls.
func (x *Index) Search(ctx context.Context, scope string, vector []float32, k int, filter *vectorindex.Filter) ([]domain.ScoredChunk, error) {
	if uint64(len(vector)) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			vectorindex.ErrDimensionMismatch, len(vector), x.dimension)
	}

	scopeFilter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("session_id", scope)},
	}

	count, err := x.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: CollectionName,
		Filter:         scopeFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("count scope chunks: %w", err)
	}
	if count == 0 {
		return nil, vectorindex.ErrEmptyIndex
	}

	must := []*qdrant.Condition{qdrant.NewMatch("session_id", scope)}
	if filter != nil && len(filter.DocumentIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("document_id", filter.DocumentIDs...))
	}

	results, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	matches := make([]domain.ScoredChunk, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		matches = append(matches, domain.ScoredChunk{
			Chunk: domain.Chunk{
				ID:          result.Id.GetUuid(),
				DocumentID:  payload["document_id"].GetStringValue(),
				Ordinal:     int(payload["ordinal"].GetIntegerValue()),
				Page:        int(payload["page"].GetIntegerValue()),
				Text:        payload["text"].GetStringValue(),
				StartOffset: int(payload["start_offset"].GetIntegerValue()),
				EndOffset:   int(payload["end_offset"].GetIntegerValue()),
			},
			Score: float64(result.Score),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Chunk.DocumentID != matches[j].Chunk.DocumentID {
			return matches[i].Chunk.DocumentID < matches[j].Chunk.DocumentID
		}
		return matches[i].Chunk.Ordinal < matches[j].Chunk.Ordinal
	})
	return matches, nil
}

// Clear deletes every point in the scope.
func (x *Index) Clear(ctx context.Context, scope string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("session_id", scope)},
	}
	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("clear scope: %w", err)
	}
	return nil
}
