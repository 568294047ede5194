package generate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI generates text with the Chat Completions API of OpenAI or a
// compatible endpoint.
type OpenAI struct {
	apiKey string
	model  string
	client openai.Client
}

func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	if model == "" {
		model = defaultOpenAIModel
	}
	apiKey = strings.TrimSpace(apiKey)
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{apiKey: apiKey, model: model, client: openai.NewClient(opts...)}
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	if o.apiKey == "" {
		return "", missingKey("OPENAI_API_KEY")
	}
	if err := validatePrompt(prompt); err != nil {
		return "", err
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    openai.ChatModel(o.model),
	})
	if err != nil {
		slog.Warn("generate openai request failed", "model", o.model, "error", err)
		return "", upstream("openai", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.CodeUpstream, "openai returned no choices", nil)
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", apperr.New(apperr.CodeUpstream, "openai returned no text", nil)
	}
	slog.Info("generate openai ok", "model", o.model, "chars", len([]rune(out)))
	return out, nil
}
