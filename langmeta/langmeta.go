// Package langmeta normalizes language codes and resolves display metadata
// (English and native names, emoji flags) for them.
package langmeta

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Auto asks for the language to be detected from the file.
const Auto = "auto"

// Meta describes language display metadata.
type Meta struct {
	Code    string // normalized BCP 47 code
	Name    string // native name
	English string // English name
	Flag    string
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 && len(parts[1]) == 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

func parse(lang string) (language.Tag, bool) {
	c := canonicalize(lang)
	if c == "" || c == Auto {
		return language.Und, false
	}
	tag, err := language.Parse(c)
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

// Normalize turns Qt and POSIX style codes (zh_CN, pt_br) into BCP 47
// (zh-CN, pt-BR). Codes that do not parse are returned canonicalized.
func Normalize(lang string) string {
	if tag, ok := parse(lang); ok {
		return tag.String()
	}
	return canonicalize(lang)
}

// Base returns the base language subtag: "zh" for zh_CN.
func Base(lang string) string {
	tag, ok := parse(lang)
	if !ok {
		c := canonicalize(lang)
		if i := strings.IndexByte(c, '-'); i > 0 {
			return c[:i]
		}
		return c
	}
	base, _ := tag.Base()
	return base.String()
}

// IsTraditionalChinese reports whether lang selects Traditional Chinese
// (zh-TW, zh-HK, zh-MO, zh-Hant).
func IsTraditionalChinese(lang string) bool {
	tag, ok := parse(lang)
	if !ok {
		return false
	}
	if base, _ := tag.Base(); base.String() != "zh" {
		return false
	}
	script, _ := tag.Script()
	return script.String() == "Hant"
}

// Valid reports whether lang is a well-formed language code.
func Valid(lang string) bool {
	_, ok := parse(lang)
	return ok
}

// Resolve returns best-effort language metadata for language codes,
// supporting variants like pt_BR, pt-BR, and base language fallbacks.
func Resolve(lang string) Meta {
	tag, ok := parse(lang)
	if !ok {
		return Meta{Code: lang, Name: lang, English: lang}
	}
	m := Meta{
		Code:    tag.String(),
		Name:    display.Self.Name(tag),
		English: display.English.Tags().Name(tag),
		Flag:    flag(tag),
	}
	if m.English == "" {
		m.English = m.Code
	}
	if m.Name == "" {
		m.Name = m.English
	}
	return m
}

// EnglishName returns the English name of lang, or lang itself.
func EnglishName(lang string) string {
	return Resolve(lang).English
}

// flag builds the regional-indicator emoji for the tag's (likely) region.
func flag(tag language.Tag) string {
	region, conf := tag.Region()
	if conf == language.No {
		return ""
	}
	code := region.String()
	if len(code) != 2 {
		return ""
	}
	var b strings.Builder
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return ""
		}
		b.WriteRune(0x1F1E6 + c - 'A')
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Detection
// ---------------------------------------------------------------------------

var namedLanguages = map[string]string{
	"chinese":    "zh",
	"english":    "en",
	"japanese":   "ja",
	"korean":     "ko",
	"french":     "fr",
	"german":     "de",
	"spanish":    "es",
	"russian":    "ru",
	"portuguese": "pt",
	"italian":    "it",
}

// FromFilename guesses the language from a .ts file name such as
// app_zh_CN.ts, app-de.ts or strings.chinese.ts. It returns "" when no
// language code is found.
func FromFilename(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	tokens := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	if len(tokens) < 2 {
		return ""
	}
	tokens = tokens[1:]

	// Trailing language + region pair: app_zh_CN.
	if n := len(tokens); n >= 2 && isLangToken(tokens[n-2]) && isRegionToken(tokens[n-1]) {
		if tag, ok := parse(tokens[n-2] + "-" + tokens[n-1]); ok {
			return tag.String()
		}
	}
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := strings.ToLower(tokens[i])
		if code, ok := namedLanguages[tok]; ok {
			return code
		}
		if isLangToken(tok) {
			if base, err := language.ParseBase(tok); err == nil {
				return base.String()
			}
		}
	}
	return ""
}

func isLangToken(s string) bool {
	return len(s) == 2 && isAlpha(s)
}

func isRegionToken(s string) bool {
	return len(s) == 2 && isAlpha(s) && strings.ToUpper(s) == s
}

func isAlpha(s string) bool {
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// Detect picks the target language of a .ts file: the language attribute of
// its <TS> element when set, otherwise a code found in the file name.
// It returns "" when neither yields a language.
func Detect(docLanguage, path string) string {
	if Valid(docLanguage) {
		return Normalize(docLanguage)
	}
	return FromFilename(path)
}
