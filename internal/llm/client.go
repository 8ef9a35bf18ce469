// Package llm talks to an OpenAI-compatible chat completion endpoint.
//
// The default endpoint is Groq's OpenAI-compatible API; any base URL that speaks the
// same protocol works. Transient failures (timeouts, 429s and 5xx responses) are
// retried with exponential backoff; other 4xx responses fail at once.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscorrea/lorekeeper/internal/retry"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is the chat model used when none is configured
	DefaultModel = "llama3-8b-8192"
)

// Message roles.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

var (
	// ErrMissingAPIKey is returned by NewClient when no key is configured.
	ErrMissingAPIKey = errors.New("API key is required")
	// ErrNoChoices is returned when the endpoint answers with no completion.
	ErrNoChoices = errors.New("no completion choices returned")
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces the assistant reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ClientConfig holds configuration for the chat client.
type ClientConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	MaxTokens        int
	Timeout          time.Duration // per attempt
	Retry            retry.Policy
	HTTPClient       *http.Client // nil uses the library default
}

// DefaultConfig returns the Groq configuration for apiKey.
func DefaultConfig(apiKey string) ClientConfig {
	return ClientConfig{
		APIKey:           apiKey,
		BaseURL:          DefaultBaseURL,
		Model:            DefaultModel,
		Temperature:      0.3,
		TopP:             0.5,
		FrequencyPenalty: 0.5,
		MaxTokens:        1024,
		Timeout:          30 * time.Second,
		Retry: retry.Policy{
			Attempts: 3,
			Backoff:  retry.Exponential(time.Second),
		},
	}
}

// Client wraps the go-openai client with per-attempt timeouts and retries.
type Client struct {
	client *openai.Client
	config ClientConfig
}

// NewClient creates a client from config.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	oc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oc.BaseURL = config.BaseURL
	}
	if config.HTTPClient != nil {
		oc.HTTPClient = config.HTTPClient
	}

	return &Client{
		client: openai.NewClientWithConfig(oc),
		config: config,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Complete sends messages and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:            c.config.Model,
		Messages:         toOpenAI(messages),
		Temperature:      c.config.Temperature,
		TopP:             c.config.TopP,
		FrequencyPenalty: c.config.FrequencyPenalty,
		MaxTokens:        c.config.MaxTokens,
	}

	var reply string
	attempt := 0
	err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) error {
		attempt++
		if c.config.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
			defer cancel()
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			err = fmt.Errorf("attempt %d: %w", attempt, err)
			if !retryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("attempt %d: %w", attempt, ErrNoChoices)
		}

		reply = resp.Choices[0].Message.Content
		slog.Debug("Chat completion", "model", c.config.Model, "attempt", attempt,
			"promptTokens", resp.Usage.PromptTokens, "completionTokens", resp.Usage.CompletionTokens)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return reply, nil
}

// retryable reports whether a failed request may succeed when repeated
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	// network errors and timeouts
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500 || code == 0
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
