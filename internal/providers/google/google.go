// Package google connects to the Gemini API through the official GenAI SDK.
package google

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

const defaultModel = "gemini-2.0-flash"

// Client talks to the Gemini generateContent API.
type Client struct {
	client *genai.Client
}

type Option func(*options)

type options struct {
	baseURL string
}

// WithBaseURL overrides the API endpoint (proxies, tests).
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// New creates a Gemini connector. The API key must be non-empty.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, apperr.Config("Google API key cannot be empty")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, apperr.Config("Failed to build Google client: %v", err)
	}
	return &Client{client: client}, nil
}

// Generate implements providers.Adapter.
func (c *Client) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	resp, err := c.client.Models.GenerateContent(ctx, model,
		genai.Text(req.EffectivePrompt()), nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, apperr.API("Google request failed with status %d: %s", apiErr.Code, apiErr.Message)
		}
		return nil, apperr.Network(err)
	}

	return &providers.Response{Content: resp.Text(), Provider: providers.Google}, nil
}
