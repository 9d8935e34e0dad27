package generation

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
	DefaultOllamaModel = "llama3:8b"
	// defaultTemperature keeps answers focused on the supplied context.
	defaultTemperature = 0.3
)

// Ollama generates completions through a local Ollama instance.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
	timeout time.Duration
}

// OllamaConfig holds optional settings; zero values pick the defaults.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// NewOllama creates an Ollama generator.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Ollama{
		client:  &http.Client{},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Complete produces a completion for the prompt, retrying transient
// failures once.
func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	var text string

	err := retryOnce(ctx, func() error {
		result, err := o.generate(ctx, prompt)
		if err != nil {
			if isTransientHTTP(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		text = result
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationService, err)
	}
	return text, nil
}

func (o *Ollama) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: &ollamaOptions{Temperature: defaultTemperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", &httpStatusError{status: resp.StatusCode, body: string(msg)}
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return genResp.Response, nil
}

// Ping validates the service is reachable without running inference.
func (o *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGenerationService, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrGenerationService, resp.StatusCode)
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

func isTransientHTTP(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr)
}
