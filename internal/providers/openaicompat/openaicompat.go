// Package openaicompat is a generic connector for upstreams speaking the
// OpenAI chat-completions dialect: DeepSeek, Groq, Together, Cerebras,
// Mistral, Clarifai, GitHub Models, OpenRouter, and Cloudflare Workers AI.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []choice `json:"choices"`
}

type choice struct {
	Message struct {
		Content *string `json:"content"`
	} `json:"message"`
}

// defaultModels is the fallback model per provider when a request carries
// none and the catalog has no preference.
var defaultModels = map[providers.Provider]string{
	providers.DeepSeek:     "deepseek-chat",
	providers.Groq:         "llama-3.3-70b-versatile",
	providers.Together:     "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free",
	providers.Cerebras:     "llama-3.1-70b",
	providers.Mistral:      "mistral-small-latest",
	providers.Clarifai:     "gpt-4",
	providers.GitHubModels: "gpt-4o",
	providers.OpenRouter:   "deepseek/deepseek-r1:free",
	providers.Cloudflare:   "@cf/meta/llama-3.3-70b-instruct",
}

// displayNames is the label used in upstream error messages.
var displayNames = map[providers.Provider]string{
	providers.DeepSeek:     "DeepSeek",
	providers.Groq:         "Groq",
	providers.Together:     "Together AI",
	providers.Cerebras:     "Cerebras",
	providers.Mistral:      "Mistral",
	providers.Clarifai:     "Clarifai",
	providers.GitHubModels: "GitHub Models",
	providers.OpenRouter:   "OpenRouter",
	providers.Cloudflare:   "Cloudflare",
}

// Client talks to one OpenAI-compatible upstream.
type Client struct {
	provider     providers.Provider
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the provider's default endpoint. Required for
// Cloudflare, whose endpoint embeds the account ID.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithDefaultModel overrides the per-provider fallback model.
func WithDefaultModel(model string) Option {
	return func(c *Client) { c.defaultModel = model }
}

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a connector for provider. The API key must be non-empty and
// the provider must end up with a base URL, either built in or supplied
// via WithBaseURL.
func New(provider providers.Provider, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, apperr.Config("%s API key cannot be empty", name(provider))
	}
	c := &Client{
		provider:     provider,
		apiKey:       apiKey,
		baseURL:      providers.DefaultBaseURL(provider),
		defaultModel: defaultModels[provider],
		client:       &http.Client{Timeout: providers.RequestTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	if c.baseURL == "" {
		return nil, apperr.Config("%s base URL must be configured", name(provider))
	}
	return c, nil
}

func name(p providers.Provider) string {
	if n, ok := displayNames[p]; ok {
		return n
	}
	return p.String()
}

// Generate implements providers.Adapter.
func (c *Client) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: req.EffectivePrompt()}},
	})
	if err != nil {
		return nil, apperr.API("Failed to serialize request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
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
		return nil, apperr.API("%s request failed with status %d: %s", name(c.provider), resp.StatusCode, string(raw))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, apperr.API("%s response decode failed: %v", name(c.provider), err)
	}

	content := ""
	if len(cr.Choices) > 0 && cr.Choices[0].Message.Content != nil {
		content = *cr.Choices[0].Message.Content
	}
	return &providers.Response{Content: content, Provider: c.provider}, nil
}
