// Package batch runs the .ts round trip over many files and aggregates the
// results into a report.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fvbommel/sortorder"
	"github.com/sirupsen/logrus"

	"github.com/minios-linux/tsfill/roundtrip"
	"github.com/minios-linux/tsfill/translate"
)

// ErrNotProcessed marks files left over when a batch is cancelled.
var ErrNotProcessed = errors.New("not processed")

// Options controls a batch run.
type Options struct {
	// Translate is applied to every file.
	Translate roundtrip.Options
	// OutputDir receives <basename> of each input. When empty, outputs go
	// next to the inputs as <stem>_<target>.ts.
	OutputDir string
	// OnFile is called before each file is processed.
	OnFile func(index, count int, path string)
	// OnResult is called after each file with its result.
	OnResult func(index, count int, r FileResult)
}

// FileResult is the outcome of one file.
type FileResult struct {
	Input  string
	Output string
	Stats  roundtrip.Stats
	Err    error
}

// OK reports whether the file was loaded, translated and saved.
func (r FileResult) OK() bool { return r.Err == nil }

// Report lists every file result plus grand totals over the files that
// completed.
type Report struct {
	Results []FileResult
	Totals  roundtrip.Stats
}

// Succeeded returns the number of files without a file-level error.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of files with a file-level error.
func (r *Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// ---------------------------------------------------------------------------
// Input collection
// ---------------------------------------------------------------------------

// IsTSFile reports whether path has the .ts extension (any case).
func IsTSFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ts")
}

// Collect expands paths into the list of .ts files to process. Directories
// are walked recursively and their .ts files sorted in natural order.
// Explicit files are kept in argument order; explicit files without the .ts
// extension are returned in ignored. Paths that do not exist are kept so the
// run reports them as file-level errors.
func Collect(paths []string) (files, ignored []string, err error) {
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, statErr := os.Stat(p)
		switch {
		case statErr != nil:
			add(p)
		case info.IsDir():
			found, walkErr := findTSFiles(p)
			if walkErr != nil {
				return nil, nil, walkErr
			}
			for _, f := range found {
				add(f)
			}
		case IsTSFile(p):
			add(p)
		default:
			ignored = append(ignored, p)
		}
	}
	return files, ignored, nil
}

func findTSFiles(dir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsTSFile(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Sort(sortorder.Natural(found))
	return found, nil
}

// OutputPath returns where the translation of input goes.
func OutputPath(input, outputDir, target string) string {
	if outputDir != "" {
		return filepath.Join(outputDir, filepath.Base(input))
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), stem+"_"+target+".ts")
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run processes files one after another. A file-level error (unreadable or
// malformed input, unwritable output) is recorded for that file and the
// batch moves on. When ctx is cancelled the current file is saved as far as
// it got and the remaining files are reported with ErrNotProcessed.
func Run(ctx context.Context, files []string, tr translate.Translator, opts Options) Report {
	log := translate.OrDiscard(opts.Translate.Logger)
	var rep Report

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			err = fmt.Errorf("creating output directory: %w", err)
			for _, f := range files {
				rep.Results = append(rep.Results, FileResult{Input: f, Err: err})
			}
			return rep
		}
	}

	count := len(files)
	for i, input := range files {
		if ctx.Err() != nil {
			rep.Results = append(rep.Results, FileResult{Input: input, Err: ErrNotProcessed})
			continue
		}
		if opts.OnFile != nil {
			opts.OnFile(i, count, input)
		}

		res := runFile(ctx, input, tr, opts)
		if res.OK() {
			rep.Totals.Add(res.Stats)
		} else {
			log.WithField("file", input).WithError(res.Err).Warn("file failed")
		}
		rep.Results = append(rep.Results, res)

		if opts.OnResult != nil {
			opts.OnResult(i, count, res)
		}
	}
	return rep
}

func runFile(ctx context.Context, input string, tr translate.Translator, opts Options) FileResult {
	res := FileResult{Input: input}

	doc, err := roundtrip.Load(input)
	if err != nil {
		res.Err = err
		return res
	}
	target, err := roundtrip.ResolveTarget(doc, input, opts.Translate.TargetLang)
	if err != nil {
		res.Err = err
		return res
	}
	res.Output = OutputPath(input, opts.OutputDir, target)

	ropts := opts.Translate
	ropts.TargetLang = target
	ropts.Logger = translate.OrDiscard(opts.Translate.Logger).WithField("file", input)

	st, runErr := roundtrip.TranslateDocument(ctx, doc, tr, ropts)
	res.Stats = st
	if err := roundtrip.Save(doc, res.Output); err != nil {
		res.Err = err
		return res
	}
	if runErr != nil {
		res.Err = runErr
	}
	return res
}

// Fields returns logrus fields summarising the report.
func (r *Report) Fields() logrus.Fields {
	return logrus.Fields{
		"files":      len(r.Results),
		"succeeded":  r.Succeeded(),
		"failed":     r.Failed(),
		"total":      r.Totals.Total,
		"translated": r.Totals.Translated,
		"skipped":    r.Totals.Skipped,
		"msg_failed": r.Totals.Failed,
	}
}
