// Package generation wraps the text-generation backends used to synthesize
// presentation pages.
package generation

import (
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"

	DefaultMaxTokens = 1500
)

// Request is the prompt material for one generation call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Generator turns prompt material into text. Implementations must honor ctx
// cancellation and report failures as errors whose message is safe to store.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Backend is a Generator that holds resources until closed.
type Backend interface {
	Generator
	io.Closer
}

// Config selects and configures a backend.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", cfg.Provider)
	}
	switch cfg.Provider {
	case ProviderOpenRouter, "":
		c := NewOpenRouter(cfg.APIKey, cfg.Model)
		if cfg.BaseURL != "" {
			c = NewOpenRouterWithBaseURL(cfg.APIKey, cfg.Model, cfg.BaseURL)
		}
		return c, nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// CleanOutput removes an outer Markdown code fence that models sometimes wrap
// their whole answer in. Fences inside the body are kept.
func CleanOutput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		nl := strings.IndexByte(s, '\n')
		if nl < 0 {
			return ""
		}
		s = strings.TrimSpace(s[nl+1:])
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
