// Package providers defines the common types shared by all upstream LLM
// connectors: the closed Provider enumeration, the workload taxonomy, the
// request/response envelope, and the one-method Adapter contract every
// concrete connector implements.
//
// Each connector lives in its own sub-package (huggingface, google, openai,
// anthropic, cohere, openaicompat) and is registered with the router at
// construction time.
package providers

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider identifies one of the known upstream services. The set is closed:
// adding a provider is a source-code change.
type Provider string

const (
	OpenAI       Provider = "openai"
	Google       Provider = "google"
	HuggingFace  Provider = "huggingface"
	Anthropic    Provider = "anthropic"
	Cohere       Provider = "cohere"
	Groq         Provider = "groq"
	DeepSeek     Provider = "deepseek"
	Together     Provider = "together"
	Cloudflare   Provider = "cloudflare"
	Cerebras     Provider = "cerebras"
	Mistral      Provider = "mistral"
	Clarifai     Provider = "clarifai"
	GitHubModels Provider = "github"
	OpenRouter   Provider = "openrouter"
)

// All lists every known provider in canonical order.
var All = []Provider{
	OpenAI, Google, HuggingFace, Anthropic, Cohere, Groq, DeepSeek,
	Together, Cloudflare, Cerebras, Mistral, Clarifai, GitHubModels,
	OpenRouter,
}

// String returns the canonical lowercase identifier.
func (p Provider) String() string { return string(p) }

// FromAlias resolves a provider from a case-insensitive alias.
// Returns ("", false) for unknown values.
func FromAlias(value string) (Provider, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "openai", "gpt":
		return OpenAI, true
	case "google", "gemini":
		return Google, true
	case "huggingface", "hugging_face", "hf":
		return HuggingFace, true
	case "anthropic", "claude":
		return Anthropic, true
	case "cohere":
		return Cohere, true
	case "groq":
		return Groq, true
	case "deepseek":
		return DeepSeek, true
	case "together", "togetherai", "together_ai":
		return Together, true
	case "cloudflare", "cf", "workers", "workers_ai":
		return Cloudflare, true
	case "cerebras":
		return Cerebras, true
	case "mistral", "mistralai", "mistral_ai":
		return Mistral, true
	case "clarifai":
		return Clarifai, true
	case "github", "github_models", "githubmodels":
		return GitHubModels, true
	case "openrouter", "open_router":
		return OpenRouter, true
	}
	return "", false
}

// Workload is a coarse category of generation task used to partition the
// model catalog.
type Workload string

const (
	WorkloadChat           Workload = "chat"
	WorkloadSummarization  Workload = "summarization"
	WorkloadCode           Workload = "code"
	WorkloadExtraction     Workload = "extraction"
	WorkloadCreative       Workload = "creative"
	WorkloadClassification Workload = "classification"
)

// Workloads lists every workload in canonical order.
var Workloads = []Workload{
	WorkloadChat, WorkloadSummarization, WorkloadCode,
	WorkloadExtraction, WorkloadCreative, WorkloadClassification,
}

// ParseWorkload resolves a workload from its lowercase key.
// "summary" is accepted as an alias for summarization.
func ParseWorkload(value string) (Workload, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "chat":
		return WorkloadChat, nil
	case "summarization", "summary":
		return WorkloadSummarization, nil
	case "code":
		return WorkloadCode, nil
	case "extraction":
		return WorkloadExtraction, nil
	case "creative":
		return WorkloadCreative, nil
	case "classification":
		return WorkloadClassification, nil
	}
	return "", fmt.Errorf("unknown workload %q (expected one of: chat, summarization, code, extraction, creative, classification)", value)
}

// Routing hint enumerations. Empty values mean "no preference".
type (
	Complexity string
	Quality    string
	Speed      string
	Guardrail  string
	Format     string
)

const (
	ComplexityLow  Complexity = "low"
	ComplexityMed  Complexity = "medium"
	ComplexityHigh Complexity = "high"

	QualityStandard Quality = "standard"
	QualityBalanced Quality = "balanced"
	QualityPremium  Quality = "premium"

	SpeedFast   Speed = "fast"
	SpeedNormal Speed = "normal"

	GuardrailStrict  Guardrail = "strict"
	GuardrailLenient Guardrail = "lenient"

	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Hints carries optional routing preferences attached to a request.
type Hints struct {
	Complexity Complexity `json:"complexity,omitempty"`
	Quality    Quality    `json:"quality,omitempty"`
	Speed      Speed      `json:"speed,omitempty"`
	Guardrail  Guardrail  `json:"guardrail,omitempty"`
	Format     Format     `json:"response_format,omitempty"`
	// Provider is a case-insensitive provider alias. Resolvable aliases are
	// tried first during candidate selection.
	Provider string `json:"provider,omitempty"`
	// Workload scopes catalog lookups when the request carries no model.
	Workload Workload `json:"workload,omitempty"`
}

// Request is the normalized generation request.
type Request struct {
	// Model is the upstream model identifier. Empty means the router picks
	// one from the catalog (or the adapter applies its own default).
	Model string `json:"model"`
	// Prompt is the user prompt. Must be non-empty after trimming.
	Prompt string `json:"prompt"`
	// Tags classify the request. Entries of the form "provider:<alias>" are
	// interpreted as routing preferences.
	Tags []string `json:"tags,omitempty"`
	// Context holds auxiliary text blocks prepended to the prompt as
	// numbered "Context N:" sections.
	Context []string `json:"context,omitempty"`
	// Metadata is opaque to the core.
	Metadata map[string]string `json:"metadata,omitempty"`
	Hints    Hints             `json:"hints,omitempty"`
}

// Clone returns a shallow copy safe for per-attempt mutation (the router
// fills in Model without touching the caller's request).
func (r *Request) Clone() *Request {
	cp := *r
	return &cp
}

// EffectivePrompt returns the prompt with any context blocks prepended as
// numbered sections.
func (r *Request) EffectivePrompt() string {
	if len(r.Context) == 0 {
		return r.Prompt
	}
	var b strings.Builder
	for i, block := range r.Context {
		fmt.Fprintf(&b, "Context %d:\n%s\n\n", i+1, block)
	}
	b.WriteString(r.Prompt)
	return b.String()
}

// Response is the normalized generation response.
type Response struct {
	Content  string   `json:"content"`
	Provider Provider `json:"provider"`
}

// Adapter is the single-method contract implemented by every upstream
// connector. Implementations are immutable after construction and safe for
// concurrent use; the internal HTTP client is shared across invocations.
type Adapter interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// RequestTimeout is the per-upstream HTTP timeout applied by connectors.
const RequestTimeout = 30 * time.Second

// DefaultBaseURL returns the provider's default API endpoint, used when the
// configuration does not override it.
func DefaultBaseURL(p Provider) string {
	switch p {
	case OpenAI:
		return "https://api.openai.com/v1"
	case Google:
		return "https://generativelanguage.googleapis.com/v1beta"
	case HuggingFace:
		return "https://api-inference.huggingface.co"
	case Anthropic:
		return "https://api.anthropic.com"
	case Cohere:
		return "https://api.cohere.com/v1"
	case Groq:
		return "https://api.groq.com/openai/v1"
	case DeepSeek:
		return "https://api.deepseek.com/v1"
	case Together:
		return "https://api.together.xyz/v1"
	case Cloudflare:
		// Requires the account ID; must be configured explicitly.
		return ""
	case Cerebras:
		return "https://api.cerebras.ai/v1"
	case Mistral:
		return "https://api.mistral.ai/v1"
	case Clarifai:
		return "https://api.clarifai.com/v2/ext/openai/v1"
	case GitHubModels:
		return "https://models.inference.ai.azure.com"
	case OpenRouter:
		return "https://openrouter.ai/api/v1"
	}
	return ""
}
