package translate

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type memEntry struct{ source, src, tgt, backend, model string }

type fakeMemory struct {
	data    map[memEntry]string
	failing bool
}

func newFakeMemory() *fakeMemory { return &fakeMemory{data: map[memEntry]string{}} }

func (m *fakeMemory) Lookup(ctx context.Context, source, src, tgt, backend, model string) (string, bool, error) {
	if m.failing {
		return "", false, errors.New("disk I/O error")
	}
	v, ok := m.data[memEntry{source, src, tgt, backend, model}]
	return v, ok, nil
}

func (m *fakeMemory) Store(ctx context.Context, source, src, tgt, backend, model, translation string) error {
	if m.failing {
		return errors.New("disk I/O error")
	}
	m.data[memEntry{source, src, tgt, backend, model}] = translation
	return nil
}

type countingTranslator struct {
	calls int
	err   error
}

func (c *countingTranslator) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return strings.ToUpper(text), nil
}

func TestCached_HitAfterMiss(t *testing.T) {
	next := &countingTranslator{}
	mem := newFakeMemory()
	c := Cached(next, mem, BackendOllama, "llama3.1", nil)

	for i := 0; i < 3; i++ {
		out, err := c.Translate(context.Background(), "open", "en", "de")
		if err != nil || out != "OPEN" {
			t.Fatalf("Translate = %q, %v", out, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("backend calls = %d, want 1", next.calls)
	}
	if hits, misses := c.Stats(); hits != 2 || misses != 1 {
		t.Fatalf("Stats() = %d hits, %d misses; want 2, 1", hits, misses)
	}
	if _, ok := mem.data[memEntry{"open", "en", "de", BackendOllama, "llama3.1"}]; !ok {
		t.Fatal("result not stored under backend and model")
	}
}

func TestCached_KeyIncludesModel(t *testing.T) {
	next := &countingTranslator{}
	mem := newFakeMemory()
	Cached(next, mem, BackendOllama, "a", nil).Translate(context.Background(), "x", "en", "de")
	Cached(next, mem, BackendOllama, "b", nil).Translate(context.Background(), "x", "en", "de")
	if next.calls != 2 {
		t.Fatalf("backend calls = %d, want 2", next.calls)
	}
}

func TestCached_ErrorsAreNotStored(t *testing.T) {
	next := &countingTranslator{err: unavailable("argos", nil)}
	mem := newFakeMemory()
	c := Cached(next, mem, BackendArgos, "", nil)

	_, err := c.Translate(context.Background(), "x", "en", "xx")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if len(mem.data) != 0 {
		t.Fatalf("failed translation was cached: %v", mem.data)
	}
}

func TestCached_MemoryFailureFallsThrough(t *testing.T) {
	next := &countingTranslator{}
	mem := newFakeMemory()
	mem.failing = true
	c := Cached(next, mem, BackendArgos, "", nil)

	out, err := c.Translate(context.Background(), "x", "en", "de")
	if err != nil || out != "X" {
		t.Fatalf("Translate = %q, %v; want X, nil", out, err)
	}
}

func TestCached_ForwardsPairCheck(t *testing.T) {
	c := Cached(&countingTranslator{}, newFakeMemory(), "", "", nil)
	ok, err := c.SupportsPair(context.Background(), "en", "de")
	if err != nil || !ok {
		t.Fatalf("SupportsPair on non-checker = %v, %v; want true", ok, err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}
