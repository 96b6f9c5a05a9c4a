// Package i18n translates tsfill's own user-facing strings.
//
// Catalogs are gettext .po files embedded in the binary; Init picks one
// from the environment. T and N pass strings through unchanged when no
// catalog matches.
//
//	i18n.Init("")
//	fmt.Println(i18n.T("Translation complete"))
//	fmt.Println(i18n.N("%d file", "%d files", n))
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Layout: locales/{lang}/LC_MESSAGES/tsfill.po
//
//go:embed all:locales
var locales embed.FS

const domain = "tsfill"

var po *gotext.Locale

// Init loads the catalog for lang, or for the environment's language when
// lang is empty. Call it once before T or N.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}
	po = gotext.NewLocaleFSWithPath(lang, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// T translates msgid.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N translates a message with plural forms, choosing by n.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// detectLanguage follows GNU gettext: LANGUAGE > LC_ALL > LC_MESSAGES > LANG.
func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		// "ru_RU.UTF-8" -> "ru_RU"
		val, _, _ = strings.Cut(val, ".")
		if val == "C" || val == "POSIX" || val == "" {
			continue
		}
		return val
	}
	return "en"
}
