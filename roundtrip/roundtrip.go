// Package roundtrip loads a .ts file, fills its messages through a
// translate.Translator, and writes the result back out.
package roundtrip

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/minios-linux/tsfill/langmeta"
	"github.com/minios-linux/tsfill/translate"
	"github.com/minios-linux/tsfill/tsfile"
)

// ErrNoTargetLanguage is returned when the target language is "auto" and
// neither the document nor its file name names one.
var ErrNoTargetLanguage = errors.New("cannot detect target language")

// Options controls a translation run.
type Options struct {
	// SourceLang is the language of <source> texts (e.g. "en").
	SourceLang string
	// TargetLang is the language to translate into, or "auto".
	TargetLang string
	// SkipTranslated leaves messages with a finished translation untouched.
	SkipTranslated bool
	// OnProgress is called after each message with the number of messages
	// handled so far and the document total.
	OnProgress func(done, total int)
	// Logger receives diagnostics. Nil discards them.
	Logger logrus.FieldLogger
}

// Failure describes a message the backend could not translate.
type Failure struct {
	Context string
	Source  string
	Reason  string
}

// Stats counts the outcome of a run. Once a run completes,
// Total == Translated + Skipped + Failed.
type Stats struct {
	Total      int
	Translated int
	Skipped    int
	Failed     int
	Failures   []Failure
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Total += o.Total
	s.Translated += o.Translated
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.Failures = append(s.Failures, o.Failures...)
}

// Load parses the .ts file at path.
func Load(path string) (*tsfile.Document, error) {
	return tsfile.ParseFile(path)
}

// Save writes doc to path. The parent directory must exist.
func Save(doc *tsfile.Document, path string) error {
	return doc.WriteFile(path)
}

// ResolveTarget returns lang unless it is "auto", in which case the target
// is taken from the document's language attribute or from path.
func ResolveTarget(doc *tsfile.Document, path, lang string) (string, error) {
	if lang != langmeta.Auto {
		return lang, nil
	}
	if detected := langmeta.Detect(doc.Language, path); detected != "" {
		return detected, nil
	}
	return "", ErrNoTargetLanguage
}

// TranslateDocument walks every message of doc in order and fills its
// translation. A failing message is marked unfinished and recorded in
// Stats.Failures; the walk goes on with the next one. When ctx is cancelled
// the walk stops between messages and ctx.Err() is returned together with
// the counts so far. A translate call already in flight is not cancelled;
// it finishes (bounded by the backend timeout) and its result is kept.
func TranslateDocument(ctx context.Context, doc *tsfile.Document, tr translate.Translator, opts Options) (Stats, error) {
	log := translate.OrDiscard(opts.Logger)
	target, err := ResolveTarget(doc, "", opts.TargetLang)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	total := len(doc.Messages())
	done := 0

	for _, c := range doc.Contexts {
		for _, m := range c.Messages {
			if err := ctx.Err(); err != nil {
				return st, err
			}

			switch {
			case opts.SkipTranslated && m.IsTranslated():
				st.Skipped++

			case strings.TrimSpace(m.Source) == "":
				m.SetTranslation(m.Source)
				st.Translated++

			default:
				out, err := tr.Translate(context.WithoutCancel(ctx), m.Source, opts.SourceLang, target)
				if err == nil && out == "" {
					err = fmt.Errorf("%w: empty result", translate.ErrFailed)
				}
				if err != nil {
					m.MarkUnfinished()
					st.Failed++
					st.Failures = append(st.Failures, Failure{Context: c.Name, Source: m.Source, Reason: err.Error()})
					log.WithFields(logrus.Fields{
						"context": c.Name,
						"source":  preview(m.Source),
					}).WithError(err).Warn("translation failed")
				} else {
					m.SetTranslation(out)
					st.Translated++
				}
			}

			st.Total++
			done++
			if opts.OnProgress != nil {
				opts.OnProgress(done, total)
			}
			if done%10 == 0 {
				log.Debugf("progress %d/%d", done, total)
			}
		}
	}
	return st, nil
}

// TranslateFile is Load, TranslateDocument and Save in one call. When the
// run is cancelled the partially translated document is still saved, and
// the context error is returned with the partial Stats.
func TranslateFile(ctx context.Context, inputPath, outputPath string, tr translate.Translator, opts Options) (Stats, error) {
	log := translate.OrDiscard(opts.Logger).WithField("file", inputPath)

	doc, err := Load(inputPath)
	if err != nil {
		return Stats{}, err
	}
	target, err := ResolveTarget(doc, inputPath, opts.TargetLang)
	if err != nil {
		return Stats{}, fmt.Errorf("%s: %w", inputPath, err)
	}
	opts.TargetLang = target
	opts.Logger = log

	st, runErr := TranslateDocument(ctx, doc, tr, opts)
	if err := Save(doc, outputPath); err != nil {
		return st, err
	}
	log.WithFields(logrus.Fields{
		"output":     outputPath,
		"translated": st.Translated,
		"skipped":    st.Skipped,
		"failed":     st.Failed,
	}).Debug("saved")
	return st, runErr
}

func preview(s string) string {
	const maxRunes = 40
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "..."
}
