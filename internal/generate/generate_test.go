package generate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
)

func TestNewSelectsProvider(t *testing.T) {
	g, err := New(Config{Provider: "gemini"})
	if err != nil {
		t.Fatalf("New(gemini) error = %v", err)
	}
	if _, ok := g.(*Gemini); !ok {
		t.Fatalf("New(gemini) = %T", g)
	}
	g, err = New(Config{Provider: "OpenAI"})
	if err != nil {
		t.Fatalf("New(openai) error = %v", err)
	}
	if _, ok := g.(*OpenAI); !ok {
		t.Fatalf("New(openai) = %T", g)
	}
	if _, err := New(Config{Provider: "claude"}); err == nil {
		t.Fatal("New(unknown) = nil error")
	}
}

func TestMissingKeyIsConfigError(t *testing.T) {
	tests := []struct {
		name string
		gen  Generator
		want string
	}{
		{"gemini", NewGemini("", ""), "Server Configuration Error: GEMINI_API_KEY is missing."},
		{"openai", NewOpenAI(" ", "", ""), "Server Configuration Error: OPENAI_API_KEY is missing."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.gen.Generate(context.Background(), "write a haiku")
			if !apperr.Is(err, apperr.CodeConfig) {
				t.Fatalf("Generate() error = %v; want %s", err, apperr.CodeConfig)
			}
			if got := apperr.Message(err); got != tt.want {
				t.Fatalf("Message() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestEmptyPromptIsValidation(t *testing.T) {
	for _, g := range []Generator{NewGemini("key", ""), NewOpenAI("key", "", "")} {
		if _, err := g.Generate(context.Background(), "  "); !apperr.Is(err, apperr.CodeValidation) {
			t.Fatalf("%T.Generate(blank) error = %v; want %s", g, err, apperr.CodeValidation)
		}
	}
}

func TestOpenAIGenerateAgainstCompatibleServer(t *testing.T) {
	var gotModel, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.Unmarshal(body, &req)
		gotModel = req.Model
		if len(req.Messages) > 0 {
			gotPrompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  朝の散歩。 "}}]}`)
	}))
	defer srv.Close()

	g := NewOpenAI("test-key", "local-model", srv.URL)
	out, err := g.Generate(context.Background(), "散歩について")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "朝の散歩。" {
		t.Fatalf("Generate() = %q", out)
	}
	if gotModel != "local-model" || gotPrompt != "散歩について" {
		t.Fatalf("request model=%q prompt=%q", gotModel, gotPrompt)
	}
}

func TestOpenAIUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI("test-key", "nope", srv.URL).Generate(context.Background(), "hi")
	if !apperr.Is(err, apperr.CodeUpstream) {
		t.Fatalf("Generate() error = %v; want %s", err, apperr.CodeUpstream)
	}
}
