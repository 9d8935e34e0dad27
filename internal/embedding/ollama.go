package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultOllamaBaseURL is the local Ollama endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"
	// DefaultOllamaModel matches the reference deployment.
	DefaultOllamaModel = "nomic-embed-text"
	// OllamaDimensions is the vector size of nomic-embed-text.
	OllamaDimensions = 768
)

// Ollama generates embeddings through a local Ollama instance.
type Ollama struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
	timeout    time.Duration
}

// OllamaConfig holds optional settings; zero values pick the defaults.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllama creates an Ollama embedder.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = OllamaDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Ollama{
		client:     &http.Client{},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
	}
}

// Dimensions reports the vector length.
func (o *Ollama) Dimensions() int { return o.dimensions }

// Embed generates a vector for the given text, retrying transient
// failures once.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32

	err := retryOnce(ctx, func() error {
		v, err := o.embed(ctx, text)
		if err != nil {
			if isTransientHTTP(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	return vector, nil
}

// EmbedBatch embeds each text in order. Ollama has no native batch API.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (o *Ollama) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, &httpStatusError{status: resp.StatusCode, body: string(msg)}
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return toFloat32(embedResp.Embedding), nil
}

// Ping validates the service is reachable without running inference.
func (o *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrEmbeddingService, resp.StatusCode)
	}
	return nil
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("ollama error (status %d): %s", e.status, e.body)
}

// isTransientHTTP reports whether the failure is worth one retry:
// network errors, timeouts, rate limits, and server-side errors.
func isTransientHTTP(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}
	return errors.Is(err, context.DeadlineExceeded) || isNetworkError(err)
}

func isNetworkError(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr)
}
