package translate

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// Memory stores finished translations keyed by source text, language pair,
// backend and model.
type Memory interface {
	Lookup(ctx context.Context, source, sourceLang, targetLang, backend, model string) (string, bool, error)
	Store(ctx context.Context, source, sourceLang, targetLang, backend, model, translation string) error
}

// CachedTranslator answers repeated requests from a Memory and records
// successful backend results in it. Memory errors are logged and otherwise
// ignored.
type CachedTranslator struct {
	next    Translator
	mem     Memory
	backend string
	model   string
	log     logrus.FieldLogger

	hits, misses int
}

// Cached wraps next with mem. backend and model become part of the key so
// results of different engines are kept apart.
func Cached(next Translator, mem Memory, backend, model string, log logrus.FieldLogger) *CachedTranslator {
	return &CachedTranslator{
		next:    next,
		mem:     mem,
		backend: backend,
		model:   model,
		log:     OrDiscard(log).WithField("component", "cache"),
	}
}

// Translate implements Translator.
func (c *CachedTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	hit, ok, err := c.mem.Lookup(ctx, text, sourceLang, targetLang, c.backend, c.model)
	if err != nil {
		c.log.WithError(err).Warn("cache lookup failed")
	} else if ok {
		c.hits++
		return hit, nil
	}
	c.misses++

	out, err := c.next.Translate(ctx, text, sourceLang, targetLang)
	if err != nil {
		return "", err
	}
	if err := c.mem.Store(ctx, text, sourceLang, targetLang, c.backend, c.model, out); err != nil {
		c.log.WithError(err).Warn("cache store failed")
	}
	return out, nil
}

// SupportsPair forwards to the wrapped translator when it is a PairChecker.
func (c *CachedTranslator) SupportsPair(ctx context.Context, sourceLang, targetLang string) (bool, error) {
	if pc, ok := c.next.(PairChecker); ok {
		return pc.SupportsPair(ctx, sourceLang, targetLang)
	}
	return true, nil
}

// Stats returns the number of cache hits and misses so far.
func (c *CachedTranslator) Stats() (hits, misses int) {
	return c.hits, c.misses
}

// Close closes the wrapped translator when it holds resources.
func (c *CachedTranslator) Close() error {
	if cl, ok := c.next.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
