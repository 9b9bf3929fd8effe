// Package llm is a thin client for OpenAI-compatible chat completion
// endpoints (Groq, Together, OpenAI).
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/metrics"
	"github.com/juju/ratelimit"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// ErrNotConfigured is returned when a provider is used without an API key
var ErrNotConfigured = errors.New("provider not configured")

// ErrEmptyResponse is returned when the provider answered with no choices
var ErrEmptyResponse = errors.New("empty completion")

var _ interfaces.ChatClient = (*Client)(nil)

// Config describes one provider endpoint
type Config struct {
	Name    string // groq, together, openai
	APIKey  string
	BaseURL string // empty means the SDK default (OpenAI)
	// RateLimit is the sustained requests per second, 0 disables limiting
	RateLimit  float64
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client // Optional (tests)
}

// Client sends chat completions to one provider
type Client struct {
	name   string
	apiKey string
	client openai.Client
	bucket *ratelimit.Bucket
}

// New builds a client. A missing API key is not an error here, calls fail
// with ErrNotConfigured instead.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &Client{
		name:   cfg.Name,
		apiKey: cfg.APIKey,
		client: openai.NewClient(opts...),
	}
	if cfg.RateLimit > 0 {
		capacity := int64(cfg.RateLimit)
		if capacity < 1 {
			capacity = 1
		}
		c.bucket = ratelimit.NewBucketWithRate(cfg.RateLimit, capacity)
	}
	return c
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return c.name
}

// Ready reports whether the client can be used
func (c *Client) Ready() error {
	if c.apiKey == "" {
		return fmt.Errorf("%s: %w", c.name, ErrNotConfigured)
	}
	return nil
}

// Complete sends one chat completion and returns the first choice's content
func (c *Client) Complete(ctx context.Context, req interfaces.ChatRequest) (string, error) {
	if err := c.Ready(); err != nil {
		return "", err
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, buildParams(req))
	metrics.ObserveExternalCall(c.name, time.Since(start).Seconds(), err)
	if err != nil {
		return "", mapError(c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", c.name, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// wait blocks until the bucket grants a token or ctx ends
func (c *Client) wait(ctx context.Context) error {
	if c.bucket == nil {
		return nil
	}
	delay := c.bucket.Take(1)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func buildParams(req interfaces.ChatRequest) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	if len(req.Images) == 0 {
		messages = append(messages, openai.UserMessage(req.Prompt))
	} else {
		parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.Prompt)}
		for _, uri := range req.Images {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: uri,
			}))
		}
		messages = append(messages, openai.UserMessage(parts))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	if req.JSONObject {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func mapError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return fmt.Errorf("%s error (status %d): %s: %w", provider, apiErr.StatusCode, msg, err)
	}
	return fmt.Errorf("%s request failed: %w", provider, err)
}
