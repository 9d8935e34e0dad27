package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// DefaultOpenAIModel is the chat model used unless overridden.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI generates completions through the OpenAI chat API.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI creates an OpenAI generator. The API key is read from
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

// Complete invokes the chat model once per attempt, retrying transient
// failures a single time.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	var text string

	err := retryOnce(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		resp, err := o.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model: openai.ChatModel(o.model),
		})
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("no choices in response"))
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationService, err)
	}
	return text, nil
}

func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}
