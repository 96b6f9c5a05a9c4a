// Package settings stores per-user tsfill state outside the project tree:
// backend credentials and the default translation cache location.
//
// Everything lives in the XDG data directory:
//
//	$XDG_DATA_HOME/tsfill/  (default: ~/.local/share/tsfill/)
//
// Files stored:
//   - auth.json  API keys and endpoint overrides, keyed by backend ID
//   - cache.db   SQLite translation memory (see package cache)
//
// auth.json is written with 0600 permissions.
//
// Lookup order for API keys:
//  1. --api-key flag
//  2. TSFILL_API_KEY environment variable or .tsfill.yaml
//  3. This credential store
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
)

const (
	dataDirName   = "tsfill"
	fileName      = "auth.json"
	cacheFileName = "cache.db"
)

// Entry is the stored credential for one backend.
type Entry struct {
	Key string `json:"key,omitempty"`
	// BaseURL points the backend at a self-hosted or alternate endpoint.
	BaseURL string `json:"baseUrl,omitempty"`
}

// Store holds all entries, keyed by backend ID.
type Store map[string]*Entry

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// DataDir returns the tsfill data directory.
// Respects $XDG_DATA_HOME, falling back to ~/.local/share.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json path for display, or "" if unknown.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// CachePath returns the default translation cache file.
func CachePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cacheFileName), nil
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store. A missing or unreadable file yields an
// empty store.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}
	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Entries
// ---------------------------------------------------------------------------

// Get returns the entry for a backend, or nil.
func Get(backend string) *Entry {
	return Load()[backend]
}

// Set stores the entry for a backend, replacing any existing one.
func Set(backend string, e *Entry) error {
	store := Load()
	store[backend] = e
	return Save(store)
}

// SetAPIKey stores key for backend, keeping a previously stored base URL.
func SetAPIKey(backend, key string) error {
	store := Load()
	e := &Entry{Key: key}
	if old := store[backend]; old != nil {
		e.BaseURL = old.BaseURL
	}
	store[backend] = e
	return Save(store)
}

// Remove deletes the entry for a backend. Removing a missing entry is a no-op.
func Remove(backend string) error {
	store := Load()
	if _, ok := store[backend]; !ok {
		return nil
	}
	delete(store, backend)
	return Save(store)
}

// RemoveAll deletes auth.json.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

// GetAPIKey returns the stored key for backend, or "".
func GetAPIKey(backend string) string {
	if e := Get(backend); e != nil {
		return e.Key
	}
	return ""
}

// GetBaseURL returns the stored endpoint override for backend, or "".
func GetBaseURL(backend string) string {
	if e := Get(backend); e != nil {
		return e.BaseURL
	}
	return ""
}

// ResolveAPIKey applies the lookup order: explicit value first, then the
// store.
func ResolveAPIKey(backend, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return GetAPIKey(backend)
}

// Backends lists the backend IDs with stored entries, sorted.
func (s Store) Backends() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MaskKey returns a masked key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
