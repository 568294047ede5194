package generate

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini generates text with the Gemini API.
type Gemini struct {
	apiKey string
	model  string

	once    sync.Once
	client  *genai.Client
	initErr error
}

func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{apiKey: strings.TrimSpace(apiKey), model: model}
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.apiKey == "" {
		return "", missingKey("GEMINI_API_KEY")
	}
	if err := validatePrompt(prompt); err != nil {
		return "", err
	}

	g.once.Do(func() {
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if g.initErr != nil {
		return "", upstream("gemini", g.initErr)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		slog.Warn("generate gemini request failed", "model", g.model, "error", err)
		return "", upstream("gemini", err)
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", apperr.New(apperr.CodeUpstream, "gemini returned no text", nil)
	}
	slog.Info("generate gemini ok", "model", g.model, "chars", len([]rune(out)))
	return out, nil
}
