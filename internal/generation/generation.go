// Package generation invokes the external generative model service.
// Like the embedding service it is a black box: prompt in, text out.
package generation

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrGenerationService wraps failures of the backing model service after
// the bounded retry has been exhausted.
var ErrGenerationService = errors.New("generation service unavailable")

// DefaultTimeout bounds a single completion call. Generation is the
// slowest dependency in the system; a timed-out call is retried at most
// once to avoid doubling already slow latency.
const DefaultTimeout = 60 * time.Second

// Generator produces a text completion for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// retryOnce runs op with at most one automatic retry on transient
// failures.
func retryOnce(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx))
}
