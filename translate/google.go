package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	gtranslate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/minios-linux/tsfill/langmeta"
)

// Google uses the Google Cloud Translation v2 API with an API key.
type Google struct {
	cfg Config

	mu     sync.Mutex
	client *gtranslate.Client
}

// NewGoogle returns a Google Cloud Translation client for cfg. The API
// connection is opened on first use.
func NewGoogle(cfg Config) *Google {
	cfg.Backend = BackendGoogle
	return &Google{cfg: cfg}
}

func (g *Google) getClient(ctx context.Context) (*gtranslate.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	opts := []option.ClientOption{option.WithAPIKey(g.cfg.APIKey)}
	if g.cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(g.cfg.BaseURL))
	}
	client, err := gtranslate.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	g.client = client
	return client, nil
}

// googleCode keeps the region for Chinese (zh-CN, zh-TW), which Google
// distinguishes, and uses the base language otherwise.
func googleCode(lang string) string {
	if langmeta.Base(lang) == "zh" {
		if langmeta.IsTraditionalChinese(lang) {
			return "zh-TW"
		}
		return "zh-CN"
	}
	return langmeta.Base(lang)
}

// Translate implements Translator.
func (g *Google) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	target, err := language.Parse(googleCode(targetLang))
	if err != nil {
		return "", unavailable(BackendGoogle, fmt.Errorf("target language %q: %w", targetLang, err))
	}
	opts := &gtranslate.Options{Format: gtranslate.Text}
	if sourceLang != "" && sourceLang != langmeta.Auto {
		source, err := language.Parse(googleCode(sourceLang))
		if err != nil {
			return "", unavailable(BackendGoogle, fmt.Errorf("source language %q: %w", sourceLang, err))
		}
		opts.Source = source
	}

	client, err := g.getClient(ctx)
	if err != nil {
		return "", failed(BackendGoogle, err)
	}

	res, err := client.Translate(ctx, []string{text}, target, opts)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(apiErr.Message), "language") {
			return "", unavailable(BackendGoogle, err)
		}
		return "", failed(BackendGoogle, err)
	}
	if len(res) == 0 || res[0].Text == "" {
		return "", failed(BackendGoogle, errors.New("empty translation in response"))
	}
	return keepOuterSpace(text, res[0].Text), nil
}

// Close releases the API connection.
func (g *Google) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}
