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

// LibreTranslate talks to a LibreTranslate server, which serves Argos
// Translate models over HTTP.
type LibreTranslate struct {
	cfg    Config
	client *resty.Client
	retry  retrier
}

// NewLibreTranslate returns a LibreTranslate client for cfg.
func NewLibreTranslate(cfg Config) *LibreTranslate {
	cfg.Backend = BackendLibreTranslate
	return &LibreTranslate{
		cfg:    cfg,
		client: newRestyClient(cfg),
		retry:  newRetrier(cfg),
	}
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
}

type libreError struct {
	Error string `json:"error"`
}

// LibreLanguage is an entry of the /languages listing.
type LibreLanguage struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Targets []string `json:"targets"`
}

// libreCode maps a language code to LibreTranslate's: the base language,
// with "zt" for Traditional Chinese.
func libreCode(lang string) string {
	if langmeta.IsTraditionalChinese(lang) {
		return "zt"
	}
	return langmeta.Base(lang)
}

// Translate implements Translator.
func (l *LibreTranslate) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	body := libreRequest{
		Q:      text,
		Source: libreCode(sourceLang),
		Target: libreCode(targetLang),
		Format: "text",
		APIKey: l.cfg.APIKey,
	}

	var out libreResponse
	var apiErr libreError
	resp, err := l.retry.do(ctx, func() (*resty.Response, error) {
		out, apiErr = libreResponse{}, libreError{}
		return l.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			SetResult(&out).
			SetError(&apiErr).
			Post("/translate")
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", failed(BackendLibreTranslate, err)
	}

	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = truncate(resp.String(), 200)
		}
		if resp.StatusCode() == http.StatusBadRequest && isUnsupportedPair(msg) {
			return "", unavailable(BackendLibreTranslate, fmt.Errorf("%s -> %s: %s", body.Source, body.Target, msg))
		}
		return "", failed(BackendLibreTranslate, fmt.Errorf("status %d: %s", resp.StatusCode(), msg))
	}
	if out.TranslatedText == "" {
		return "", failed(BackendLibreTranslate, errors.New("empty translation in response"))
	}
	return keepOuterSpace(text, out.TranslatedText), nil
}

func isUnsupportedPair(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "not supported") || strings.Contains(m, "is not available")
}

// Languages lists the languages the server has models for.
func (l *LibreTranslate) Languages(ctx context.Context) ([]LibreLanguage, error) {
	var langs []LibreLanguage
	resp, err := l.retry.do(ctx, func() (*resty.Response, error) {
		langs = nil
		return l.client.R().SetContext(ctx).SetResult(&langs).Get("/languages")
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failed(BackendLibreTranslate, err)
	}
	if resp.IsError() {
		return nil, failed(BackendLibreTranslate, fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 200)))
	}
	return langs, nil
}

// SupportsPair implements PairChecker. Servers that do not publish target
// lists are assumed to translate between all listed languages.
func (l *LibreTranslate) SupportsPair(ctx context.Context, sourceLang, targetLang string) (bool, error) {
	langs, err := l.Languages(ctx)
	if err != nil {
		return false, err
	}
	src, tgt := libreCode(sourceLang), libreCode(targetLang)
	var haveSource, haveTarget bool
	for _, lang := range langs {
		if lang.Code == tgt {
			haveTarget = true
		}
		if lang.Code != src {
			continue
		}
		haveSource = true
		if len(lang.Targets) == 0 {
			continue
		}
		for _, t := range lang.Targets {
			if t == tgt {
				return true, nil
			}
		}
		return false, nil
	}
	return haveSource && haveTarget, nil
}

// keepOuterSpace gives out the leading and trailing whitespace of src.
func keepOuterSpace(src, out string) string {
	if strings.TrimSpace(src) == "" {
		return out
	}
	core := strings.TrimSpace(out)
	lead := src[:len(src)-len(strings.TrimLeft(src, " \t\r\n"))]
	trail := src[len(strings.TrimRight(src, " \t\r\n")):]
	return lead + core + trail
}
