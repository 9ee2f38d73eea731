package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/aaj441/aaronos-core/pkg/retry"
	"github.com/aaj441/aaronos-core/pkg/telemetry"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds every generation call. The upstream API has no
	// timeout of its own, so one is always imposed here.
	DefaultTimeout = 60 * time.Second

	maxAttempts = 4
	baseDelay   = 2 * time.Second
)

// ErrAPIKeyNotSet is returned when the client is constructed without a key.
var ErrAPIKeyNotSet = errors.New("generation API key not set")

// Generator produces text for a prompt within a token budget. Responses carry
// no structured-output guarantee; callers decode with the llm.Decode helpers.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Client is the OpenAI-backed Generator.
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

func WithModel(m string) Option          { return func(c *Client) { c.model = m } }
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// NewClient constructs a Client with the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	c := &Client{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   DefaultModel,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate sends the prompt and returns the completion text. Rate-limit
// responses are retried with backoff; any other failure is returned as-is.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	var content string
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
	}, func() error {
		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if isRateLimited(err) {
				return err
			}
			return retry.Permanent(fmt.Errorf("generation call failed: %w", err))
		}
		if len(completion.Choices) == 0 {
			return retry.Permanent(errors.New("no completion choices returned"))
		}
		content = completion.Choices[0].Message.Content
		telemetry.LLMTokensUsed.Add(float64(completion.Usage.TotalTokens))
		return nil
	})
	if err != nil {
		telemetry.LLMRequests.WithLabelValues("error").Inc()
		return "", err
	}
	telemetry.LLMRequests.WithLabelValues("ok").Inc()
	return content, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

var _ Generator = (*Client)(nil)
