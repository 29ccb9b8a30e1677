// Package openai connects to the OpenAI API through the official SDK.
package openai

import (
	"context"
	"errors"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

const defaultModel = "gpt-4o-mini"

// Client talks to the OpenAI chat-completions API.
type Client struct {
	client openaiSDK.Client
}

type Option func(*options)

type options struct {
	baseURL string
}

// WithBaseURL overrides the API endpoint (proxies, tests).
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// New creates an OpenAI connector. The API key must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, apperr.Config("OpenAI API key cannot be empty")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	sdkOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if o.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(o.baseURL))
	}
	return &Client{client: openaiSDK.NewClient(sdkOpts...)}, nil
}

// Generate implements providers.Adapter.
func (c *Client) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	resp, err := c.client.Chat.Completions.New(ctx, openaiSDK.ChatCompletionNewParams{
		Model: model,
		Messages: []openaiSDK.ChatCompletionMessageParamUnion{
			openaiSDK.UserMessage(req.EffectivePrompt()),
		},
	})
	if err != nil {
		var apiErr *openaiSDK.Error
		if errors.As(err, &apiErr) {
			return nil, apperr.API("OpenAI request failed with status %d: %s", apiErr.StatusCode, apiErr.Error())
		}
		return nil, apperr.Network(err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	return &providers.Response{Content: content, Provider: providers.OpenAI}, nil
}
