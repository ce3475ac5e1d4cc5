package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"vetrag/internal/domain"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	defaultOllamaModel = "llama3.1"
	defaultOllamaURL   = "http://localhost:11434/v1"

	// BaseBackoff is the first wait after a rate-limited call.
	BaseBackoff = 2 * time.Second
	// MaxBackoff caps the exponential backoff.
	MaxBackoff = 32 * time.Second
)

// OpenAIClient completes chats against an OpenAI-compatible endpoint.
type OpenAIClient struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
}

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("OpenAI API key not set")
	}
	if opts.Model == "" {
		opts.Model = defaultOpenAIModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// retries are handled here so the backoff policy is explicit
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAIClient{
		client:      openai.NewClient(reqOpts...),
		model:       opts.Model,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
		maxRetries:  max(opts.MaxRetries, 0),
		baseBackoff: BaseBackoff,
	}, nil
}

// NewOpenAIClientFromEnv reads the API key from apiKeyEnv.
func NewOpenAIClientFromEnv(apiKeyEnv string, opts OpenAIOptions) (*OpenAIClient, error) {
	opts.APIKey = os.Getenv(apiKeyEnv)
	if opts.APIKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	return NewOpenAIClient(opts)
}

// NewOllamaClient talks to a local Ollama server through its OpenAI
// compatible API.
func NewOllamaClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.Model == "" {
		opts.Model = defaultOllamaModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultOllamaURL
	}
	opts.APIKey = "ollama"
	return NewOpenAIClient(opts)
}

// Complete sends messages and returns the first choice's content. Rate
// limited calls (HTTP 429) are retried with exponential backoff.
func (c *OpenAIClient) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(c.temperature),
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.baseBackoff
	policy.MaxInterval = MaxBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var content string
	call := func() error {
		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("OpenAI API call failed: %w", err))
		}
		if len(completion.Choices) == 0 {
			return backoff.Permanent(errors.New("no completion choices returned"))
		}
		content = completion.Choices[0].Message.Content
		return nil
	}

	err := backoff.Retry(call, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx))
	if err != nil {
		if isRateLimitError(err) {
			return "", fmt.Errorf("max retries exceeded: %w", err)
		}
		return "", err
	}
	return content, nil
}

func (c *OpenAIClient) ModelName() string {
	return c.model
}

func toOpenAIMessages(messages []domain.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
