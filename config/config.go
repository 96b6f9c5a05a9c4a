// Package config implements .tsfill.yaml configuration file support.
//
// A .tsfill.yaml file in the working directory (or one named with
// --config) supplies defaults for every run: languages, the translation
// backend and the translation cache. Command line flags override it, and
// TSFILL_* environment variables sit between the two.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/tsfill/langmeta"
	"github.com/minios-linux/tsfill/translate"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .tsfill.yaml structure.
type File struct {
	// SourceLang is the language of <source> texts (default "en").
	SourceLang string `yaml:"source_lang,omitempty"`
	// TargetLang is the language to translate into (default "zh"), or "auto".
	TargetLang string `yaml:"target_lang,omitempty"`
	// SkipTranslated leaves finished messages untouched (default true).
	SkipTranslated *bool `yaml:"skip_translated,omitempty"`
	// OutputDir is the default batch output directory.
	OutputDir string `yaml:"output_dir,omitempty"`
	// Report is the default batch report path.
	Report string `yaml:"report,omitempty"`
	// Backend selects and configures the translation engine.
	Backend Backend `yaml:"backend,omitempty"`
	// Cache configures the translation memory.
	Cache Cache `yaml:"cache,omitempty"`
}

// Backend configures the translation engine.
type Backend struct {
	// Name is one of libretranslate, argos, ollama, google.
	Name string `yaml:"name,omitempty"`
	// URL overrides the backend's default endpoint.
	URL string `yaml:"url,omitempty"`
	// APIKey authenticates against hosted services.
	APIKey string `yaml:"api_key,omitempty"`
	// Model is the Ollama model name.
	Model string `yaml:"model,omitempty"`
	// Timeout is the per-request timeout, e.g. "90s".
	Timeout Duration `yaml:"timeout,omitempty"`
	// MaxRetries bounds retries of failed HTTP requests.
	MaxRetries int `yaml:"max_retries,omitempty"`
	// ArgosBin is the argos-translate executable.
	ArgosBin string `yaml:"argos_bin,omitempty"`
}

// Cache configures the translation memory.
type Cache struct {
	// Enabled turns the cache on (default true).
	Enabled *bool `yaml:"enabled,omitempty"`
	// Path is the SQLite file (default <data dir>/cache.db).
	Path string `yaml:"path,omitempty"`
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

const (
	// FileName is the default config file name.
	FileName = ".tsfill.yaml"

	DefaultSourceLang = "en"
	DefaultTargetLang = "zh"

	EnvAPIKey     = "TSFILL_API_KEY"
	EnvBackendURL = "TSFILL_BACKEND_URL"
	EnvBackend    = "TSFILL_BACKEND"
)

// Default returns the configuration used when no file exists.
func Default() *File {
	f := &File{}
	f.applyDefaults()
	return f
}

func (f *File) applyDefaults() {
	if f.SourceLang == "" {
		f.SourceLang = DefaultSourceLang
	}
	if f.TargetLang == "" {
		f.TargetLang = DefaultTargetLang
	}
	if f.SkipTranslated == nil {
		f.SkipTranslated = boolPtr(true)
	}
	if f.Backend.Name == "" {
		f.Backend.Name = translate.BackendLibreTranslate
	}
	if f.Cache.Enabled == nil {
		f.Cache.Enabled = boolPtr(true)
	}
}

func boolPtr(b bool) *bool { return &b }

// Skip reports the effective skip_translated setting.
func (f *File) Skip() bool { return f.SkipTranslated == nil || *f.SkipTranslated }

// CacheEnabled reports the effective cache.enabled setting.
func (f *File) CacheEnabled() bool { return f.Cache.Enabled == nil || *f.Cache.Enabled }

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads, defaults and validates the config file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// LoadDir loads .tsfill.yaml from dir. Returns the defaults if no file exists.
func LoadDir(dir string) (*File, error) {
	path := filepath.Join(dir, FileName)
	f, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return f, err
}

// ApplyEnv overrides settings from TSFILL_* environment variables.
func (f *File) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvBackend); v != "" {
		f.Backend.Name = v
	}
	if v := getenv(EnvBackendURL); v != "" {
		f.Backend.URL = v
	}
	if v := getenv(EnvAPIKey); v != "" {
		f.Backend.APIKey = v
	}
}

// Validate checks field values.
func (f *File) Validate() error {
	if !isKnownBackend(f.Backend.Name) {
		return fmt.Errorf("unknown backend %q (valid: %s)", f.Backend.Name, strings.Join(translate.BackendIDs(), ", "))
	}
	if f.Backend.Timeout < 0 {
		return fmt.Errorf("backend timeout must not be negative, got %v", time.Duration(f.Backend.Timeout))
	}
	if f.Backend.MaxRetries < 0 {
		return fmt.Errorf("backend max_retries must not be negative, got %d", f.Backend.MaxRetries)
	}
	if !langmeta.Valid(f.SourceLang) {
		return fmt.Errorf("invalid source_lang %q", f.SourceLang)
	}
	if f.TargetLang != langmeta.Auto && !langmeta.Valid(f.TargetLang) {
		return fmt.Errorf("invalid target_lang %q", f.TargetLang)
	}
	return nil
}

func isKnownBackend(name string) bool {
	for _, id := range translate.BackendIDs() {
		if id == name {
			return true
		}
	}
	return false
}

// TranslateConfig converts the backend section into a translate.Config.
func (f *File) TranslateConfig() translate.Config {
	return translate.Config{
		Backend:    f.Backend.Name,
		BaseURL:    f.Backend.URL,
		APIKey:     f.Backend.APIKey,
		Model:      f.Backend.Model,
		Timeout:    time.Duration(f.Backend.Timeout),
		MaxRetries: f.Backend.MaxRetries,
		ArgosBin:   f.Backend.ArgosBin,
	}
}

// Write saves f as YAML to path, refusing to overwrite an existing file.
func Write(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}
