// Package anthropic connects to the Anthropic API through the official SDK.
package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 4096
)

// Client talks to the Anthropic messages API.
type Client struct {
	client anthropicSDK.Client
}

type Option func(*options)

type options struct {
	baseURL string
}

// WithBaseURL overrides the API endpoint (proxies, tests).
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// New creates an Anthropic connector. The API key must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, apperr.Config("Anthropic API key cannot be empty")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	sdkOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if o.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(o.baseURL))
	}
	return &Client{client: anthropicSDK.NewClient(sdkOpts...)}, nil
}

// Generate implements providers.Adapter.
func (c *Client) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	msg, err := c.client.Messages.New(ctx, anthropicSDK.MessageNewParams{
		Model:     anthropicSDK.Model(model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropicSDK.MessageParam{
			anthropicSDK.NewUserMessage(anthropicSDK.NewTextBlock(req.EffectivePrompt())),
		},
	})
	if err != nil {
		var apiErr *anthropicSDK.Error
		if errors.As(err, &apiErr) {
			return nil, apperr.API("Anthropic request failed with status %d: %s", apiErr.StatusCode, apiErr.Error())
		}
		return nil, apperr.Network(err)
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		switch v := b.AsAny().(type) {
		case anthropicSDK.TextBlock:
			sb.WriteString(v.Text)
		case *anthropicSDK.TextBlock:
			sb.WriteString(v.Text)
		}
	}
	return &providers.Response{Content: sb.String(), Provider: providers.Anthropic}, nil
}
