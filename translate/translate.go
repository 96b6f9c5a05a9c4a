// Package translate defines the machine-translation capability used to fill
// .ts files, and implements it for LibreTranslate, the Argos Translate CLI,
// Ollama and Google Cloud Translation.
package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// ---------------------------------------------------------------------------
// Capability
// ---------------------------------------------------------------------------

// Translator translates one text from sourceLang to targetLang.
//
// Failures wrap ErrUnavailable (no model for the language pair) or ErrFailed
// (any other engine error). A cancelled ctx is returned as ctx.Err().
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// TranslatorFunc adapts a plain function to the Translator interface.
type TranslatorFunc func(ctx context.Context, text, sourceLang, targetLang string) (string, error)

// Translate calls f.
func (f TranslatorFunc) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return f(ctx, text, sourceLang, targetLang)
}

// PairChecker is implemented by backends that can tell ahead of time whether
// a language pair is installed.
type PairChecker interface {
	SupportsPair(ctx context.Context, sourceLang, targetLang string) (bool, error)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrUnavailable means no translation model exists for the requested pair.
	ErrUnavailable = errors.New("translation unavailable")
	// ErrFailed covers every other engine failure.
	ErrFailed = errors.New("translation failed")
)

// Error is returned by the backends in this package.
type Error struct {
	Backend string
	Kind    error // ErrUnavailable or ErrFailed
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(backend string, err error) error {
	return &Error{Backend: backend, Kind: ErrUnavailable, Err: err}
}

func failed(backend string, err error) error {
	return &Error{Backend: backend, Kind: ErrFailed, Err: err}
}

// ---------------------------------------------------------------------------
// Backend configuration
// ---------------------------------------------------------------------------

// Backend IDs accepted by New.
const (
	BackendLibreTranslate = "libretranslate"
	BackendArgos          = "argos"
	BackendOllama         = "ollama"
	BackendGoogle         = "google"
)

// Backend describes a translation engine.
type Backend struct {
	// ID is the backend identifier (libretranslate, argos, ollama, google).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL (empty for non-HTTP backends).
	BaseURL string
	// Model is the default model, where the backend has one.
	Model string
	// Timeout is the default request timeout.
	Timeout time.Duration
	// NeedsKey is set when the backend cannot work without an API key.
	NeedsKey bool
}

// DefaultBackends returns the built-in backend definitions.
func DefaultBackends() map[string]Backend {
	return map[string]Backend{
		BackendLibreTranslate: {
			ID:      BackendLibreTranslate,
			Name:    "LibreTranslate",
			BaseURL: "http://localhost:5000",
			Timeout: 60 * time.Second,
		},
		BackendArgos: {
			ID:      BackendArgos,
			Name:    "Argos Translate",
			Timeout: 120 * time.Second,
		},
		BackendOllama: {
			ID:      BackendOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434",
			Model:   "llama3.1",
			Timeout: 120 * time.Second,
		},
		BackendGoogle: {
			ID:       BackendGoogle,
			Name:     "Google Cloud Translation",
			Timeout:  60 * time.Second,
			NeedsKey: true,
		},
	}
}

// BackendIDs lists the backend identifiers in display order.
func BackendIDs() []string {
	return []string{BackendLibreTranslate, BackendArgos, BackendOllama, BackendGoogle}
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of the Backend* IDs.
	Backend string
	// BaseURL overrides the backend's default URL.
	BaseURL string
	// APIKey authenticates against hosted services.
	APIKey string
	// Model overrides the backend's default model.
	Model string
	// Timeout is the per-request timeout (overrides the backend default).
	Timeout time.Duration
	// MaxRetries is the maximum number of retries on transport errors,
	// 429 and 5xx responses. Default: 3.
	MaxRetries int
	// RetryWait is the base of the exponential backoff. Default: 1s.
	RetryWait time.Duration
	// ArgosBin is the argos-translate executable. Default: "argos-translate".
	ArgosBin string
	// Logger receives diagnostics. Nil discards them.
	Logger logrus.FieldLogger
}

func (c *Config) backend() Backend {
	return DefaultBackends()[c.Backend]
}

func (c *Config) effectiveBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return c.backend().BaseURL
}

func (c *Config) effectiveModel() string {
	if c.Model != "" {
		return c.Model
	}
	return c.backend().Model
}

func (c *Config) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	if t := c.backend().Timeout; t > 0 {
		return t
	}
	return 60 * time.Second
}

func (c *Config) effectiveMaxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 3
}

func (c *Config) effectiveRetryWait() time.Duration {
	if c.RetryWait > 0 {
		return c.RetryWait
	}
	return time.Second
}

func (c *Config) logger() logrus.FieldLogger {
	return OrDiscard(c.Logger).WithField("backend", c.Backend)
}

// OrDiscard returns l, or a logger that drops everything when l is nil.
func OrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	nop := logrus.New()
	nop.SetOutput(io.Discard)
	return nop
}

// New builds the Translator selected by cfg.Backend.
func New(cfg Config) (Translator, error) {
	switch cfg.Backend {
	case BackendLibreTranslate:
		return NewLibreTranslate(cfg), nil
	case BackendArgos:
		return NewArgos(cfg), nil
	case BackendOllama:
		return NewOllama(cfg), nil
	case BackendGoogle:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("backend %q requires an API key", cfg.Backend)
		}
		return NewGoogle(cfg), nil
	case "":
		return nil, errors.New("no translation backend configured")
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

func newRestyClient(cfg Config) *resty.Client {
	return resty.New().
		SetBaseURL(cfg.effectiveBaseURL()).
		SetTimeout(cfg.effectiveTimeout()).
		SetHeader("Accept", "application/json")
}

// retrier repeats an HTTP call with exponential backoff on transport
// errors, 429 and 5xx responses.
type retrier struct {
	maxRetries int
	wait       time.Duration
	log        logrus.FieldLogger
}

func newRetrier(cfg Config) retrier {
	return retrier{
		maxRetries: cfg.effectiveMaxRetries(),
		wait:       cfg.effectiveRetryWait(),
		log:        cfg.logger(),
	}
}

func (r retrier) do(ctx context.Context, call func() (*resty.Response, error)) (*resty.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := call()
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		case resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500:
			lastErr = fmt.Errorf("API returned status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
		default:
			return resp, nil
		}

		if attempt == r.maxRetries {
			break
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * r.wait
		r.log.WithField("attempt", attempt+1).Debugf("request failed (%v), retrying in %v", lastErr, wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("giving up after %d retries: %w", r.maxRetries, lastErr)
}

// truncate shortens s to at most maxLen bytes for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// isCtxErr reports whether err comes from a cancelled or expired context.
func isCtxErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
