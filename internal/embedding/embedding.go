// Package embedding maps text to fixed-length vectors via an external
// embedding service. The service is a black box to the rest of the
// engine: deterministic for identical input, reachable over the network.
package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrEmbeddingService wraps failures of the backing service after the
// bounded retry has been exhausted.
var ErrEmbeddingService = errors.New("embedding service unavailable")

// DefaultTimeout bounds a single embedding call. A timeout is a
// retryable condition, distinct from a hard service error.
const DefaultTimeout = 15 * time.Second

// Embedder generates embeddings for text.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the vector length this embedder produces.
	Dimensions() int
}

// retryOnce runs op with at most one automatic retry on transient
// failures. Permanent errors inside op must be marked with
// backoff.Permanent so they fail immediately.
func retryOnce(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx))
}
