// Package huggingface connects to the Hugging Face Inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

const defaultModel = "HuggingFaceH4/zephyr-7b-beta"

type inferenceRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters *inferenceParameters `json:"parameters,omitempty"`
}

type inferenceParameters struct {
	ReturnFullText bool `json:"return_full_text"`
}

// Client talks to the Hugging Face Inference API.
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

// New creates a Hugging Face connector. The API key must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, apperr.Config("Hugging Face API key cannot be empty")
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: providers.DefaultBaseURL(providers.HuggingFace),
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

	body, err := json.Marshal(inferenceRequest{
		Inputs:     req.EffectivePrompt(),
		Parameters: &inferenceParameters{ReturnFullText: false},
	})
	if err != nil {
		return nil, apperr.API("Failed to serialize request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/"+model, bytes.NewReader(body))
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
		return nil, apperr.API("Hugging Face request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var value json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		return nil, apperr.API("Hugging Face response decode failed: %v", err)
	}

	// Missing text is treated as an empty completion, not an error.
	content := extractGeneratedText(value)
	return &providers.Response{Content: content, Provider: providers.HuggingFace}, nil
}

// extractGeneratedText pulls the completion from the inference API's two
// response shapes: an array of {"generated_text": ...} objects or a single
// such object.
func extractGeneratedText(raw json.RawMessage) string {
	type generated struct {
		GeneratedText  *string `json:"generated_text"`
		GeneratedTexts []struct {
			Text *string `json:"text"`
		} `json:"generated_texts"`
	}

	var items []generated
	if err := json.Unmarshal(raw, &items); err == nil {
		for _, item := range items {
			if item.GeneratedText != nil {
				return *item.GeneratedText
			}
			if len(item.GeneratedTexts) > 0 && item.GeneratedTexts[0].Text != nil {
				return *item.GeneratedTexts[0].Text
			}
		}
		return ""
	}

	var single generated
	if err := json.Unmarshal(raw, &single); err == nil && single.GeneratedText != nil {
		return *single.GeneratedText
	}
	return ""
}
