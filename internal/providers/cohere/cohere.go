// Package cohere connects to the Cohere chat API.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

const defaultModel = "command-r-plus"

type chatRequest struct {
	Model   string `json:"model"`
	Message string `json:"message"`
}

type chatResponse struct {
	Text string `json:"text"`
}

// Client talks to the Cohere chat API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a Cohere connector. The API key must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, apperr.Config("Cohere API key cannot be empty")
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: providers.DefaultBaseURL(providers.Cohere),
		client:  &http.Client{Timeout: providers.RequestTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Generate implements providers.Adapter.
func (c *Client) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	body, err := json.Marshal(chatRequest{Model: model, Message: req.EffectivePrompt()})
	if err != nil {
		return nil, apperr.API("Failed to serialize request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Network(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperr.Network(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, apperr.API("Cohere request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, apperr.API("Cohere response decode failed: %v", err)
	}
	return &providers.Response{Content: cr.Text, Provider: providers.Cohere}, nil
}
