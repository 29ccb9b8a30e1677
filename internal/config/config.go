// Package config loads and validates runtime configuration.
//
// Configuration is read from a YAML file in the user config directory
// (<config_dir>/freegin-ai/config.yaml) or a project-local freegin-ai.yaml,
// with environment overrides using the APP prefix and "__" as the nesting
// separator: APP__SERVER__PORT=9090 sets server.port. A .env file in the
// working directory is loaded first when present.
//
// Provider credentials may be left out of the config entirely; the router
// falls back to the encrypted credential store for any provider without a
// configured api_key.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/freegin/freegin-ai/internal/providers"
	"github.com/freegin/freegin-ai/internal/storage"
	"github.com/freegin/freegin-ai/pkg/apperr"
)

// Config is the top-level configuration container.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig

	// LogLevel controls the minimum log level. One of: debug, info, warn,
	// error. Default: info.
	LogLevel string

	// Providers holds per-provider credentials and endpoint overrides,
	// keyed by canonical provider identifier.
	Providers map[providers.Provider]ProviderConfig
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds the database connection URL (sqlite: scheme).
type DatabaseConfig struct {
	URL string
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Mode selects the backend: "redis", "memory", or "none".
	// Default: "none" — generation responses are not cached unless asked.
	Mode string

	// TTL is the time-to-live for cached responses. Default: 1h.
	TTL time.Duration

	// RedisURL is required when Mode is "redis".
	RedisURL string

	// ExcludeExact lists model names that must never be cached.
	ExcludeExact []string

	// ExcludePatterns lists regular expressions matched against the model
	// name; any match bypasses the cache.
	ExcludePatterns []string
}

// ProviderConfig holds one provider's static credentials.
type ProviderConfig struct {
	// APIKey enables the provider when non-empty. Empty means "consult the
	// credential store".
	APIKey string

	// APIBaseURL overrides the provider's default endpoint. Required for
	// Cloudflare Workers AI (the URL embeds the account ID).
	APIBaseURL string
}

// configKeys maps providers to their key in the config tree. Hugging Face
// keeps its historical underscored name.
var configKeys = map[providers.Provider]string{
	providers.OpenAI:       "openai",
	providers.Google:       "google",
	providers.HuggingFace:  "hugging_face",
	providers.Anthropic:    "anthropic",
	providers.Cohere:       "cohere",
	providers.Groq:         "groq",
	providers.DeepSeek:     "deepseek",
	providers.Together:     "together",
	providers.Cloudflare:   "cloudflare",
	providers.Cerebras:     "cerebras",
	providers.Mistral:      "mistral",
	providers.Clarifai:     "clarifai",
	providers.GitHubModels: "github",
	providers.OpenRouter:   "openrouter",
}

// Load reads configuration from config files and the environment.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, path := range candidateConfigFiles() {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, apperr.Config("Failed to read config file %s: %v", path, err)
		}
	}

	// viper joins the prefix and the key with a single underscore, so the
	// trailing underscore here yields the APP__ prefix the env scheme uses.
	v.SetEnvPrefix("APP_")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.url", storage.DefaultDatabaseURL())
	v.SetDefault("log_level", "info")
	v.SetDefault("cache.mode", "none")
	v.SetDefault("cache.ttl", "1h")

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		Cache: CacheConfig{
			Mode:            strings.ToLower(v.GetString("cache.mode")),
			TTL:             v.GetDuration("cache.ttl"),
			RedisURL:        v.GetString("cache.redis_url"),
			ExcludeExact:    v.GetStringSlice("cache.exclude_exact"),
			ExcludePatterns: v.GetStringSlice("cache.exclude_patterns"),
		},
		LogLevel:  strings.ToLower(v.GetString("log_level")),
		Providers: make(map[providers.Provider]ProviderConfig, len(configKeys)),
	}

	for p, key := range configKeys {
		pc := ProviderConfig{
			APIKey:     v.GetString("providers." + key + ".api_key"),
			APIBaseURL: v.GetString("providers." + key + ".api_base_url"),
		}
		if pc.APIKey != "" || pc.APIBaseURL != "" {
			cfg.Providers[p] = pc
		}
	}

	if strings.TrimSpace(cfg.Database.URL) == "" {
		cfg.Database.URL = storage.DefaultDatabaseURL()
	}
	normalized, err := storage.NormalizeURL(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	cfg.Database.URL = normalized

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Provider returns the static configuration for p, or a zero value.
func (c *Config) Provider(p providers.Provider) ProviderConfig {
	return c.Providers[p]
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return apperr.Config("server.port must be in 1..65535, got %d", c.Server.Port)
	}

	switch c.Cache.Mode {
	case "redis", "memory", "none":
	default:
		return apperr.Config("invalid cache.mode %q; must be one of: redis, memory, none", c.Cache.Mode)
	}
	if c.Cache.Mode == "redis" && c.Cache.RedisURL == "" {
		return apperr.Config("cache.redis_url is required when cache.mode=redis")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return apperr.Config("invalid log_level %q; must be one of: debug, info, warn, error", c.LogLevel)
	}
	return nil
}

func candidateConfigFiles() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		p := filepath.Join(dir, "freegin-ai", "config.yaml")
		if fileExists(p) {
			paths = append(paths, p)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		legacy := filepath.Join(home, ".freegin-ai", "config.yaml")
		if fileExists(legacy) {
			paths = append(paths, legacy)
		}
	}
	if fileExists("freegin-ai.yaml") {
		paths = append(paths, "freegin-ai.yaml")
	}
	return paths
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return apperr.Config("Failed to stat %s: %v", path, err)
	}
	if info.IsDir() {
		return apperr.Config("%s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return apperr.Config("Failed to load %s: %v", path, err)
	}
	return nil
}
