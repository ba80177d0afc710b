// Package crllm audits an execution report with a hosted language model and
// returns the findings as markdown. OpenAI, Anthropic, and Google are
// supported; the provider is chosen per call site or from the environment.
package crllm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Defaults applied when Config leaves the knobs zero.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 8192
)

// Default models per provider.
const (
	DefaultOpenAIModel    = "o4-mini"
	DefaultAnthropicModel = "claude-sonnet-4-0"
	DefaultGoogleModel    = "gemini-2.5-pro"
)

// Auditor turns an execution report into a markdown audit.
type Auditor interface {
	Audit(ctx context.Context, report string) (string, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	// Provider is one of openai, anthropic, google. Empty means openai.
	Provider string

	// Model overrides the provider's default model.
	Model string

	// APIKey overrides the provider's key environment variable.
	APIKey string

	// Temperature and MaxTokens fall back to the package defaults when
	// zero. OpenAI reasoning models fix their own temperature, so the
	// openai provider ignores Temperature.
	Temperature float64
	MaxTokens   int
}

func (c Config) temperature() float64 {
	if c.Temperature == 0 {
		return DefaultTemperature
	}
	return c.Temperature
}

func (c Config) maxTokens() int {
	if c.MaxTokens == 0 {
		return DefaultMaxTokens
	}
	return c.MaxTokens
}

// key resolves the API key: explicit config first, then the provider's
// environment variable.
func (c Config) key(envVar string) (string, error) {
	if c.APIKey != "" {
		return c.APIKey, nil
	}
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s not set", envVar)
}

// New returns the auditor for cfg.Provider.
func New(cfg Config) (Auditor, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return newOpenAI(cfg)
	case "anthropic":
		return newAnthropic(cfg)
	case "google":
		return newGoogle(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q (openai, anthropic, google)", cfg.Provider)
	}
}

// DefaultProvider returns the provider selected by LLM_PROVIDER, defaulting
// to openai.
func DefaultProvider() string {
	if p := os.Getenv("LLM_PROVIDER"); p != "" {
		return strings.ToLower(p)
	}
	return "openai"
}

// StripFences removes the markdown code fence some models wrap their whole
// answer in.
func StripFences(s string) string {
	out := strings.TrimSpace(s)

	if strings.HasPrefix(out, "```markdown") {
		out = out[len("```markdown"):]
	}
	if strings.HasSuffix(out, "```") {
		out = strings.TrimSuffix(out, "```")
	}

	return strings.TrimSpace(out)
}
