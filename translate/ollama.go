package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/minios-linux/tsfill/langmeta"
)

// ollamaSystemPrompt is filled with the English source and target language names.
const ollamaSystemPrompt = `You translate user interface strings of desktop applications from %s to %s.
Rules:
- Reply with the translation only, without quotes, notes or explanations.
- Keep placeholders such as %%1, %%n, {0} and %%s unchanged.
- Keep HTML tags, "&" keyboard accelerators and line breaks where they are.`

// Ollama translates with a local LLM served by Ollama's /api/chat endpoint.
type Ollama struct {
	cfg    Config
	client *resty.Client
	retry  retrier
}

// NewOllama returns an Ollama client for cfg.
func NewOllama(cfg Config) *Ollama {
	cfg.Backend = BackendOllama
	return &Ollama{
		cfg:    cfg,
		client: newRestyClient(cfg),
		retry:  newRetrier(cfg),
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

type ollamaError struct {
	Error string `json:"error"`
}

type ollamaTags struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Translate implements Translator.
func (o *Ollama) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	model := o.cfg.effectiveModel()
	body := ollamaChatRequest{
		Model: model,
		Messages: []ollamaMessage{
			{Role: "system", Content: fmt.Sprintf(ollamaSystemPrompt, langmeta.EnglishName(sourceLang), langmeta.EnglishName(targetLang))},
			{Role: "user", Content: text},
		},
		Options: map[string]any{"temperature": 0},
	}

	var out ollamaChatResponse
	var apiErr ollamaError
	resp, err := o.retry.do(ctx, func() (*resty.Response, error) {
		out, apiErr = ollamaChatResponse{}, ollamaError{}
		return o.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			SetResult(&out).
			SetError(&apiErr).
			Post("/api/chat")
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", failed(BackendOllama, err)
	}

	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = truncate(resp.String(), 200)
		}
		if resp.StatusCode() == http.StatusNotFound {
			return "", unavailable(BackendOllama, fmt.Errorf("model %q: %s", model, msg))
		}
		return "", failed(BackendOllama, fmt.Errorf("status %d: %s", resp.StatusCode(), msg))
	}

	content := strings.TrimSpace(out.Message.Content)
	if content == "" {
		return "", failed(BackendOllama, errors.New("empty response content"))
	}
	return keepOuterSpace(text, content), nil
}

// SupportsPair implements PairChecker. Any pair is accepted as long as the
// configured model is pulled.
func (o *Ollama) SupportsPair(ctx context.Context, sourceLang, targetLang string) (bool, error) {
	var tags ollamaTags
	resp, err := o.retry.do(ctx, func() (*resty.Response, error) {
		tags = ollamaTags{}
		return o.client.R().SetContext(ctx).SetResult(&tags).Get("/api/tags")
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, failed(BackendOllama, err)
	}
	if resp.IsError() {
		return false, failed(BackendOllama, fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 200)))
	}
	model := o.cfg.effectiveModel()
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name == model || strings.TrimSuffix(name, ":latest") == model {
			return true, nil
		}
	}
	return false, nil
}
