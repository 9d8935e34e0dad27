package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultOpenAIModel is the embedding model used unless overridden.
	DefaultOpenAIModel = "text-embedding-3-small"
	// OpenAIDimensions is the vector size of text-embedding-3-small.
	OpenAIDimensions = 1536
	// openaiBatchSize balances requests-per-minute vs tokens-per-minute
	// rate limits. The API allows up to 2048 texts per request.
	openaiBatchSize = 500
)

// OpenAI generates embeddings through the OpenAI API.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI creates an OpenAI embedder. The API key is read from
// OPENAI_API_KEY; a missing key is an error.
func NewOpenAI(model string, timeout time.Duration) (*OpenAI, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := openai.NewClient()
	return &OpenAI{client: &client, model: model, timeout: timeout}, nil
}

// Dimensions reports the vector length.
func (o *OpenAI) Dimensions() int { return OpenAIDimensions }

// Embed returns the vector for a single text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in batches, retrying transient failures once.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32
	for i := 0; i < len(texts); i += openaiBatchSize {
		end := min(i+openaiBatchSize, len(texts))
		vectors, err := o.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", ErrEmbeddingService, i, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

func (o *OpenAI) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	err := retryOnce(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		resp, err := o.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(o.model),
		})
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vectors[i] = toFloat32(data.Embedding)
		}
		return nil
	})
	return vectors, err
}

// isRetryable treats rate limits, server errors, and timeouts as
// transient; other API errors fail immediately.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// toFloat32 converts the API's float64 vectors to the float32 the index
// stores.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
