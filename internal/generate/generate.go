// Package generate drafts post text with a hosted language model.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
)

// Generator turns a prompt into post text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider     string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	// OpenAIBaseURL points the OpenAI provider at a compatible endpoint.
	OpenAIBaseURL string
}

// New returns the configured provider. Missing API keys are reported when
// Generate is called so the server can still start without one.
func New(cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderGemini:
		return NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("generate: unsupported provider %q", cfg.Provider)
	}
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

func validatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return apperr.New(apperr.CodeValidation, "Prompt is required", nil)
	}
	return nil
}

func missingKey(name string) error {
	return apperr.New(apperr.CodeConfig, fmt.Sprintf("Server Configuration Error: %s is missing.", name), nil)
}

func upstream(provider string, err error) error {
	return apperr.New(apperr.CodeUpstream, provider+" generation failed", err)
}
