// tsfill fills unfinished Qt Linguist .ts translations through a machine-translation backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/minios-linux/tsfill/batch"
	"github.com/minios-linux/tsfill/cache"
	"github.com/minios-linux/tsfill/config"
	"github.com/minios-linux/tsfill/i18n"
	"github.com/minios-linux/tsfill/langmeta"
	"github.com/minios-linux/tsfill/roundtrip"
	"github.com/minios-linux/tsfill/settings"
	"github.com/minios-linux/tsfill/translate"
	"github.com/minios-linux/tsfill/tsfile"
	"github.com/minios-linux/tsfill/worker"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// logOut receives all status output.
var logOut io.Writer = os.Stderr

var (
	infoTag    = color.New(color.FgBlue).SprintFunc()
	successTag = color.New(color.FgGreen).SprintFunc()
	warningTag = color.New(color.Bold, color.FgYellow).SprintFunc()
	errorTag   = color.New(color.FgRed).SprintFunc()
	headerTag  = color.New(color.FgBlue).SprintFunc()
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(logOut, "%s %s\n", infoTag("[INFO]"), fmt.Sprintf(format, args...))
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(logOut, "%s %s\n", successTag("[OK]"), fmt.Sprintf(format, args...))
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(logOut, "%s %s\n", warningTag("[WARN]"), fmt.Sprintf(format, args...))
}

func logError(format string, args ...any) {
	fmt.Fprintf(logOut, "%s %s\n", errorTag("[ERROR]"), fmt.Sprintf(format, args...))
}

// errInterrupted is returned by commands stopped with Ctrl+C.
var errInterrupted = errors.New("interrupted")

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

type globalOptions struct {
	configPath string
	backend    string
	backendURL string
	apiKey     string
	model      string
	timeout    time.Duration
	maxRetries int
	argosBin   string
	noCache    bool
	cachePath  string
	verbose    bool
	quiet      bool
}

func (g *globalOptions) register(fs *pflag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "Config file (default ./"+config.FileName+")")
	fs.StringVar(&g.backend, "backend", "", "Translation backend: "+strings.Join(translate.BackendIDs(), ", "))
	fs.StringVar(&g.backendURL, "backend-url", "", "Backend API base URL (or "+config.EnvBackendURL+")")
	fs.StringVar(&g.apiKey, "api-key", "", "API key (or "+config.EnvAPIKey+")")
	fs.StringVar(&g.model, "model", "", "Model name (ollama)")
	fs.DurationVar(&g.timeout, "timeout", 0, "Request timeout (0 = backend default)")
	fs.IntVar(&g.maxRetries, "max-retries", 0, "Maximum retries on 429/5xx and network errors (0 = default)")
	fs.StringVar(&g.argosBin, "argos-bin", "", "argos-translate executable")
	fs.BoolVar(&g.noCache, "no-cache", false, "Do not use the translation cache")
	fs.StringVar(&g.cachePath, "cache-path", "", "Translation cache file (default <data dir>/cache.db)")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "Enable detailed logging")
	fs.BoolVarP(&g.quiet, "quiet", "q", false, "Hide progress bars")
}

// langOptions are the per-command language and skip flags.
type langOptions struct {
	source string
	target string
	noSkip bool
}

func (l *langOptions) register(fs *pflag.FlagSet) {
	fs.StringVarP(&l.source, "source-lang", "s", "", "Source language (default "+config.DefaultSourceLang+")")
	fs.StringVarP(&l.target, "target-lang", "t", "", "Target language, or \"auto\" (default "+config.DefaultTargetLang+")")
	fs.BoolVar(&l.noSkip, "no-skip", false, "Re-translate messages that already have a finished translation")
}

func completeBackends(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	defs := translate.DefaultBackends()
	out := make([]string, 0, len(defs))
	for _, id := range translate.BackendIDs() {
		out = append(out, id+"\t"+defs[id].Name)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "tsfill",
		Short: i18n.T("Fill Qt Linguist .ts files with machine translations"),
		Long: `tsfill fills unfinished Qt Linguist .ts translations with a machine-translation backend.

Existing translations, comments and unknown markup are preserved byte for
byte; only the <translation> elements that were filled change.

Commands:
  translate   Translate one .ts file
  batch       Translate many .ts files and write a CSV report
  status      Show translation progress of .ts files
  init        Write a .tsfill.yaml config file
  auth        Manage stored API keys
  cache       Inspect or clear the translation cache

Backends:
  libretranslate  LibreTranslate server (Argos models over HTTP, default)
  argos           argos-translate command line, fully offline
  ollama          Local LLM served by Ollama
  google          Google Cloud Translation, API key required`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	g.register(root.PersistentFlags())
	_ = root.RegisterFlagCompletionFunc("backend", completeBackends)

	root.AddCommand(
		newTranslateCmd(g),
		newBatchCmd(g),
		newStatusCmd(),
		newInitCmd(g),
		newAuthCmd(),
		newCacheCmd(g),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: i18n.T("Show version information"),
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tsfill version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// Configuration and engine setup
// ---------------------------------------------------------------------------

// loadConfig applies flags > environment > config file > defaults.
func loadConfig(g *globalOptions, l *langOptions, getenv func(string) string) (*config.File, error) {
	var (
		f   *config.File
		err error
	)
	if g.configPath != "" {
		f, err = config.Load(g.configPath)
	} else {
		f, err = config.LoadDir(".")
	}
	if err != nil {
		return nil, err
	}
	f.ApplyEnv(getenv)

	if g.backend != "" {
		f.Backend.Name = g.backend
	}
	if g.backendURL != "" {
		f.Backend.URL = g.backendURL
	}
	if g.apiKey != "" {
		f.Backend.APIKey = g.apiKey
	}
	if g.model != "" {
		f.Backend.Model = g.model
	}
	if g.timeout > 0 {
		f.Backend.Timeout = config.Duration(g.timeout)
	}
	if g.maxRetries > 0 {
		f.Backend.MaxRetries = g.maxRetries
	}
	if g.argosBin != "" {
		f.Backend.ArgosBin = g.argosBin
	}
	if g.cachePath != "" {
		f.Cache.Path = g.cachePath
	}
	if g.noCache {
		disabled := false
		f.Cache.Enabled = &disabled
	}
	if l != nil {
		if l.source != "" {
			f.SourceLang = l.source
		}
		if l.target != "" {
			f.TargetLang = l.target
		}
		if l.noSkip {
			skip := false
			f.SkipTranslated = &skip
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func newLogger(g *globalOptions) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(logOut)
	log.SetLevel(logrus.WarnLevel)
	if g.verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return log
}

// engine is the configured translator plus the resources it holds.
type engine struct {
	translate.Translator
	cached  *translate.CachedTranslator
	db      *cache.DB
	backend translate.Backend
	log     logrus.FieldLogger
}

func cacheFile(f *config.File) (string, error) {
	if f.Cache.Path != "" {
		return f.Cache.Path, nil
	}
	return settings.CachePath()
}

// openEngine builds the backend named by f, wrapped in the translation
// cache unless it is disabled. A cache that cannot be opened is skipped.
func openEngine(f *config.File, log logrus.FieldLogger) (*engine, error) {
	cfg := f.TranslateConfig()
	cfg.APIKey = settings.ResolveAPIKey(cfg.Backend, cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = settings.GetBaseURL(cfg.Backend)
	}
	cfg.Logger = log

	tr, err := translate.New(cfg)
	if err != nil {
		return nil, err
	}
	e := &engine{Translator: tr, backend: translate.DefaultBackends()[cfg.Backend], log: log}

	if f.CacheEnabled() {
		path, err := cacheFile(f)
		if err == nil {
			e.db, err = cache.Open(path)
		}
		if err != nil {
			logWarning(i18n.T("Translation cache disabled: %v"), err)
			return e, nil
		}
		model := cfg.Model
		if model == "" {
			model = e.backend.Model
		}
		e.cached = translate.Cached(tr, e.db, cfg.Backend, model, log)
		e.Translator = e.cached
	}
	return e, nil
}

// Close releases the backend and the cache.
func (e *engine) Close() error {
	var errs []error
	if c, ok := e.Translator.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	return errors.Join(errs...)
}

// preflight warns when the backend already knows it cannot serve the pair.
func (e *engine) preflight(ctx context.Context, source, target string) {
	if target == langmeta.Auto {
		return
	}
	pc, ok := e.Translator.(translate.PairChecker)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	supported, err := pc.SupportsPair(ctx, source, target)
	if err != nil {
		e.log.WithError(err).Debug("language pair check failed")
		return
	}
	if !supported {
		logWarning(i18n.T("%s has no model for %s -> %s; messages will be left unfinished"), e.backend.Name, source, target)
	}
}

func (e *engine) reportCache() {
	if e.cached == nil {
		return
	}
	hits, misses := e.cached.Stats()
	if hits > 0 {
		logInfo(i18n.T("Translation cache: %d hits, %d misses"), hits, misses)
	}
}

// onInterrupt calls cancel on the first Ctrl+C. The returned func stops
// listening.
func onInterrupt(cancel func()) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			logWarning("%s", i18n.T("Interrupted, saving progress..."))
			cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// ---------------------------------------------------------------------------
// Progress display
// ---------------------------------------------------------------------------

// progress wraps a progress bar that may be disabled.
type progress struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newProgress(enabled bool, desc string) *progress {
	p := &progress{}
	if !enabled {
		return p
	}
	p.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(logOut),
		progressbar.OptionEnableColorCodes(!color.NoColor),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return p
}

func (p *progress) update(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	if p.bar.GetMax() != total {
		p.bar.ChangeMax(total)
	}
	_ = p.bar.Set(done)
}

func (p *progress) describe(desc string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// printf clears the bar, then prints a status line through fn.
func (p *progress) printf(fn func(string, ...any), format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Clear()
	}
	fn(format, args...)
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// ---------------------------------------------------------------------------
// translate (single file)
// ---------------------------------------------------------------------------

func newTranslateCmd(g *globalOptions) *cobra.Command {
	l := &langOptions{}

	cmd := &cobra.Command{
		Use:   "translate <input.ts> <output.ts>",
		Short: i18n.T("Translate one .ts file"),
		Long: `Translate the unfinished messages of one .ts file and write the result.

Messages that already have a finished translation are kept unless --no-skip
is given. A message the backend cannot translate is left unfinished and
reported; it never stops the run. Ctrl+C stops between messages and saves
what has been translated so far.

Examples:
  tsfill translate app_de.ts app_de.ts -t de
  tsfill translate app.ts app_zh_CN.ts -t auto --backend ollama --model qwen2.5
  tsfill translate app.ts out.ts -s en -t fr --no-skip`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd.Context(), g, l, args[0], args[1])
		},
	}
	l.register(cmd.Flags())
	return cmd
}

func runTranslate(ctx context.Context, g *globalOptions, l *langOptions, input, output string) error {
	f, err := loadConfig(g, l, os.Getenv)
	if err != nil {
		return err
	}
	log := newLogger(g)
	eng, err := openEngine(f, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.preflight(ctx, f.SourceLang, f.TargetLang)

	opts := roundtrip.Options{
		SourceLang:     f.SourceLang,
		TargetLang:     f.TargetLang,
		SkipTranslated: f.Skip(),
		Logger:         log,
	}

	job := worker.Start(ctx, func(ctx context.Context, r *worker.Reporter) (roundtrip.Stats, error) {
		r.File(0, 1, input)
		opts.OnProgress = r.Message
		return roundtrip.TranslateFile(ctx, input, output, eng, opts)
	})
	stop := onInterrupt(job.Cancel)
	defer stop()

	bar := newProgress(!g.quiet, filepath.Base(input))
	for ev := range job.Events() {
		if ev.Type == worker.EventProgress {
			bar.update(ev.Done, ev.Total)
		}
	}
	bar.finish()

	st, err := job.Wait()
	eng.reportCache()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	printFailures(st.Failures)
	summary := fmt.Sprintf(i18n.T("%d translated, %d skipped, %d failed"), st.Translated, st.Skipped, st.Failed)
	if errors.Is(err, context.Canceled) {
		logWarning(i18n.T("Partial result saved to %s: %s"), output, summary)
		return errInterrupted
	}
	if st.Failed > 0 {
		logWarning("%s: %s", output, summary)
	} else {
		logSuccess("%s: %s: %s", i18n.T("Translation complete"), output, summary)
	}
	return nil
}

func printFailures(failures []roundtrip.Failure) {
	const shown = 10
	for i, fl := range failures {
		if i == shown {
			logWarning(i18n.T("... and %d more"), len(failures)-shown)
			break
		}
		src := strings.ReplaceAll(fl.Source, "\n", `\n`)
		if len([]rune(src)) > 50 {
			src = string([]rune(src)[:50]) + "..."
		}
		logWarning("  [%s] %q: %s", fl.Context, src, fl.Reason)
	}
}

// ---------------------------------------------------------------------------
// batch
// ---------------------------------------------------------------------------

func newBatchCmd(g *globalOptions) *cobra.Command {
	var (
		l         = &langOptions{}
		outputDir string
		report    string
	)

	cmd := &cobra.Command{
		Use:   "batch <file-or-dir>...",
		Short: i18n.T("Translate many .ts files and write a report"),
		Long: `Translate every .ts file given, searching directories recursively.

Without --output-dir each result is written next to its input as
<name>_<target>.ts. A file that cannot be read, parsed or written is
reported and the batch goes on with the next one. A CSV report with one row
per file and a TOTAL row is written to --report (default ` + batch.DefaultReportFile + `).

Examples:
  tsfill batch translations/ -t de
  tsfill batch a.ts b.ts -o out/ -t zh_CN -r report.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), g, l, args, outputDir, report)
		},
	}
	l.register(cmd.Flags())
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for translated files")
	cmd.Flags().StringVarP(&report, "report", "r", "", "CSV report path (default "+batch.DefaultReportFile+")")
	return cmd
}

func runBatch(ctx context.Context, g *globalOptions, l *langOptions, paths []string, outputDir, report string) error {
	f, err := loadConfig(g, l, os.Getenv)
	if err != nil {
		return err
	}
	if outputDir == "" {
		outputDir = f.OutputDir
	}
	if report == "" {
		report = f.Report
	}
	if report == "" {
		report = batch.DefaultReportFile
	}

	files, ignored, err := batch.Collect(paths)
	if err != nil {
		return err
	}
	for _, p := range ignored {
		logWarning(i18n.T("Ignoring %s: not a .ts file"), p)
	}
	if len(files) == 0 {
		return errors.New(i18n.T("no .ts files found"))
	}
	logInfo(i18n.N("Translating %d file", "Translating %d files", len(files)), len(files))

	log := newLogger(g)
	eng, err := openEngine(f, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.preflight(ctx, f.SourceLang, f.TargetLang)

	bar := newProgress(!g.quiet, "")
	opts := batch.Options{
		Translate: roundtrip.Options{
			SourceLang:     f.SourceLang,
			TargetLang:     f.TargetLang,
			SkipTranslated: f.Skip(),
			Logger:         log,
		},
		OutputDir: outputDir,
		OnResult: func(i, n int, res batch.FileResult) {
			printFileResult(bar, i, n, res)
		},
	}

	job := worker.Start(ctx, func(ctx context.Context, r *worker.Reporter) (batch.Report, error) {
		opts.OnFile = r.File
		opts.Translate.OnProgress = r.Message
		rep := batch.Run(ctx, files, eng, opts)
		return rep, ctx.Err()
	})
	stop := onInterrupt(job.Cancel)
	defer stop()

	for ev := range job.Events() {
		switch ev.Type {
		case worker.EventFile:
			bar.describe(fmt.Sprintf("[%d/%d] %s", ev.FileIndex+1, ev.FileCount, filepath.Base(ev.File)))
		case worker.EventProgress:
			bar.update(ev.Done, ev.Total)
		}
	}
	bar.finish()

	rep, runErr := job.Wait()
	eng.reportCache()
	log.WithFields(rep.Fields()).Debug("batch finished")

	fmt.Fprintln(logOut)
	logInfo(i18n.T("Files: %s succeeded, %s failed"), humanize.Comma(int64(rep.Succeeded())), humanize.Comma(int64(rep.Failed())))
	logInfo(i18n.T("Messages: %s total, %s translated, %s skipped, %s failed"),
		humanize.Comma(int64(rep.Totals.Total)), humanize.Comma(int64(rep.Totals.Translated)),
		humanize.Comma(int64(rep.Totals.Skipped)), humanize.Comma(int64(rep.Totals.Failed)))

	if err := batch.WriteCSVFile(report, rep); err != nil {
		logError(i18n.T("Writing report: %v"), err)
	} else {
		logSuccess(i18n.T("Report written to %s"), report)
	}

	switch {
	case runErr != nil:
		return errInterrupted
	case rep.Succeeded() == 0:
		return errors.New(i18n.T("every file failed"))
	}
	return nil
}

func printFileResult(bar *progress, i, n int, res batch.FileResult) {
	prefix := fmt.Sprintf("[%d/%d] %s", i+1, n, res.Input)
	switch {
	case !res.OK():
		bar.printf(logError, "%s: %v", prefix, res.Err)
	case res.Stats.Failed > 0:
		bar.printf(logWarning, "%s -> %s: %d translated, %d skipped, %d failed",
			prefix, res.Output, res.Stats.Translated, res.Stats.Skipped, res.Stats.Failed)
	default:
		bar.printf(logSuccess, "%s -> %s: %d translated, %d skipped",
			prefix, res.Output, res.Stats.Translated, res.Stats.Skipped)
	}
}

// ---------------------------------------------------------------------------
// status (read-only)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <file-or-dir>...",
		Short: i18n.T("Show translation progress of .ts files"),
		Long: `Show per-file message counts and translation progress.

Directories are searched recursively for .ts files. Does not modify any files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, _, err := batch.Collect(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.New(i18n.T("no .ts files found"))
			}
			showStatus(files)
			return nil
		},
	}
}

type fileStatus struct {
	path   string
	lang   string
	size   int64
	counts tsfile.Counts
	err    error
}

func loadStatus(path string) fileStatus {
	st := fileStatus{path: path}
	if info, err := os.Stat(path); err == nil {
		st.size = info.Size()
	}
	doc, err := tsfile.ParseFile(path)
	if err != nil {
		st.err = err
		return st
	}
	st.lang = doc.Language
	if st.lang == "" {
		st.lang = langmeta.FromFilename(path)
	}
	st.counts = doc.Counts()
	return st
}

// percentDone ignores vanished and obsolete entries.
func (s fileStatus) percentDone() int {
	live := s.counts.Total - s.counts.Vanished
	if live <= 0 {
		return 100
	}
	return s.counts.Finished * 100 / live
}

func showStatus(files []string) {
	fmt.Fprintf(logOut, "%s\n", headerTag(i18n.T("Translation Statistics")))
	fmt.Fprintln(logOut, strings.Repeat("─", 96))
	fmt.Fprintf(logOut, "%-32s %-10s %7s %7s %7s %7s %9s  %s\n",
		"File", "Lang", "Total", "Done", "Unfin.", "Empty", "Size", "Progress")
	fmt.Fprintln(logOut, strings.Repeat("─", 96))

	var sum tsfile.Counts
	for _, path := range files {
		st := loadStatus(path)
		name := shortenPath(path, 32)
		if st.err != nil {
			fmt.Fprintf(logOut, "%-32s %s\n", name, errorTag(st.err.Error()))
			continue
		}
		fmt.Fprintf(logOut, "%-32s %-10s %7d %7d %7d %7d %9s  %s\n",
			name, langLabel(st.lang), st.counts.Total, st.counts.Finished, st.counts.Unfinished,
			st.counts.Empty, humanize.Bytes(uint64(st.size)), progressBar(st.percentDone(), 20))
		sum.Total += st.counts.Total
		sum.Finished += st.counts.Finished
		sum.Unfinished += st.counts.Unfinished
		sum.Empty += st.counts.Empty
		sum.Vanished += st.counts.Vanished
	}
	fmt.Fprintln(logOut, strings.Repeat("─", 96))
	fmt.Fprintf(logOut, "%-32s %-10s %7d %7d %7d %7d\n", "TOTAL", "", sum.Total, sum.Finished, sum.Unfinished, sum.Empty)
	fmt.Fprintln(logOut)
}

// langLabel renders a language code with its flag when one is known.
func langLabel(lang string) string {
	if lang == "" {
		return "-"
	}
	if m := langmeta.Resolve(lang); m.Flag != "" {
		return m.Flag + " " + lang
	}
	return lang
}

func shortenPath(p string, width int) string {
	r := []rune(p)
	if len(r) <= width {
		return p
	}
	return "..." + string(r[len(r)-width+3:])
}

// progressBar renders percent as a colored bar of the given width.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	paint := color.New(color.FgRed).SprintFunc()
	switch {
	case percent >= 100:
		paint = color.New(color.FgGreen).SprintFunc()
	case percent >= 50:
		paint = color.New(color.FgYellow).SprintFunc()
	}
	return fmt.Sprintf("%s %3d%%", paint(bar), percent)
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func newInitCmd(g *globalOptions) *cobra.Command {
	l := &langOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: i18n.T("Write a .tsfill.yaml config file"),
		Long: `Write a .tsfill.yaml with the current defaults.

Language and backend flags given to init are stored in the file. An
existing file is never overwritten.

Examples:
  tsfill init -t de --backend ollama --model qwen2.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if path == "" {
				path = config.FileName
			}
			f := config.Default()
			if l.source != "" {
				f.SourceLang = l.source
			}
			if l.target != "" {
				f.TargetLang = l.target
			}
			if g.backend != "" {
				f.Backend.Name = g.backend
			}
			f.Backend.URL = g.backendURL
			f.Backend.Model = g.model
			f.Backend.Timeout = config.Duration(g.timeout)
			if err := f.Validate(); err != nil {
				return err
			}
			if err := config.Write(path, f); err != nil {
				return err
			}
			logSuccess(i18n.T("Created %s"), path)
			return nil
		},
	}
	l.register(cmd.Flags())
	return cmd
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: i18n.T("Manage stored API keys"),
		Long: `Manage API keys and endpoints stored in ` + settings.FilePath() + `.

Keys given with --api-key or ` + config.EnvAPIKey + ` take precedence over stored ones.

Examples:
  tsfill auth set google                       Prompt for a Google API key
  tsfill auth set libretranslate KEY --url https://lt.example.org
  tsfill auth list                             Show stored keys
  tsfill auth remove google                    Remove the Google key
  tsfill auth remove                           Remove everything`,
	}
	cmd.AddCommand(newAuthSetCmd(), newAuthListCmd(), newAuthRemoveCmd())
	return cmd
}

func validBackend(id string) error {
	if _, ok := translate.DefaultBackends()[id]; !ok {
		return fmt.Errorf("unknown backend %q (valid: %s)", id, strings.Join(translate.BackendIDs(), ", "))
	}
	return nil
}

func newAuthSetCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:               "set <backend> [key]",
		Short:             i18n.T("Store an API key for a backend"),
		Args:              cobra.RangeArgs(1, 2),
		ValidArgsFunction: completeBackends,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := validBackend(id); err != nil {
				return err
			}
			var key string
			if len(args) == 2 {
				key = args[1]
			} else {
				var err error
				if key, err = promptKey(cmd.InOrStdin(), id); err != nil {
					return err
				}
			}
			if key == "" && baseURL == "" {
				return errors.New(i18n.T("no API key provided"))
			}

			entry := settings.Get(id)
			if entry == nil {
				entry = &settings.Entry{}
			}
			if key != "" {
				entry.Key = key
			}
			if baseURL != "" {
				entry.BaseURL = baseURL
			}
			if err := settings.Set(id, entry); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}
			logSuccess(i18n.T("%s credentials saved"), translate.DefaultBackends()[id].Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Store an endpoint override for the backend")
	return cmd
}

func promptKey(in io.Reader, id string) (string, error) {
	if existing := settings.GetAPIKey(id); existing != "" {
		fmt.Fprintf(logOut, "  Current key: %s\n", settings.MaskKey(existing))
	}
	fmt.Fprintf(logOut, "  %s ", i18n.T("Enter API key:"))
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return "", errors.New(i18n.T("no input received"))
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   i18n.T("Show stored credentials"),
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			store := settings.Load()
			defs := translate.DefaultBackends()

			fmt.Fprintf(logOut, "\n%s\n", headerTag(i18n.T("Stored Credentials")))
			fmt.Fprintln(logOut, strings.Repeat("─", 60))
			for _, id := range translate.BackendIDs() {
				e := store[id]
				switch {
				case e != nil && e.Key != "":
					fmt.Fprintf(logOut, "  %-16s %s (key: %s)\n", id, successTag("configured"), settings.MaskKey(e.Key))
				case e != nil && e.BaseURL != "":
					fmt.Fprintf(logOut, "  %-16s %s (no key)\n", id, successTag("configured"))
				case defs[id].NeedsKey:
					fmt.Fprintf(logOut, "  %-16s %s\n", id, errorTag("not configured"))
				default:
					fmt.Fprintf(logOut, "  %-16s %s\n", id, "no key needed")
				}
				if e != nil && e.BaseURL != "" {
					fmt.Fprintf(logOut, "  %16s endpoint: %s\n", "", e.BaseURL)
				}
			}

			fmt.Fprintln(logOut)
			if envKey := os.Getenv(config.EnvAPIKey); envKey != "" {
				fmt.Fprintf(logOut, "  %s: %s (overrides stored keys)\n", config.EnvAPIKey, successTag(settings.MaskKey(envKey)))
			} else {
				fmt.Fprintf(logOut, "  %s: %s\n", config.EnvAPIKey, errorTag("not set"))
			}
			fmt.Fprintln(logOut)
		},
	}
}

func newAuthRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "remove [backend]",
		Aliases:           []string{"rm"},
		Short:             i18n.T("Remove stored credentials"),
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeBackends,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logSuccess("%s", i18n.T("All stored credentials removed"))
				return nil
			}
			if err := validBackend(args[0]); err != nil {
				return err
			}
			if err := settings.Remove(args[0]); err != nil {
				return err
			}
			logSuccess(i18n.T("%s credentials removed"), args[0])
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// cache
// ---------------------------------------------------------------------------

func newCacheCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: i18n.T("Inspect or clear the translation cache"),
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: i18n.T("Show cache location and size"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCache(g)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Len(cmd.Context())
			if err != nil {
				return err
			}
			var size uint64
			if info, err := os.Stat(db.Path()); err == nil {
				size = uint64(info.Size())
			}
			logInfo(i18n.T("Cache: %s"), db.Path())
			logInfo(i18n.T("Entries: %s (%s)"), humanize.Comma(int64(n)), humanize.Bytes(size))
			return nil
		},
	}

	var olderThan time.Duration
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: i18n.T("Delete cached translations"),
		Long: `Delete cached translations, all of them or only those older than --older-than.

Examples:
  tsfill cache clear
  tsfill cache clear --older-than 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCache(g)
			if err != nil {
				return err
			}
			defer db.Close()

			var before time.Time
			if olderThan > 0 {
				before = time.Now().Add(-olderThan)
			}
			n, err := db.Prune(cmd.Context(), before)
			if err != nil {
				return err
			}
			logSuccess(i18n.N("Removed %d cached translation", "Removed %d cached translations", int(n)), n)
			return nil
		},
	}
	clearCmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only remove entries older than this")

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

func openCache(g *globalOptions) (*cache.DB, error) {
	f, err := loadConfig(g, nil, os.Getenv)
	if err != nil {
		return nil, err
	}
	path, err := cacheFile(f)
	if err != nil {
		return nil, err
	}
	return cache.Open(path)
}
