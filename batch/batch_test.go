package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/minios-linux/tsfill/roundtrip"
	"github.com/minios-linux/tsfill/translate"
	"github.com/minios-linux/tsfill/tsfile"
)

const oneMessage = `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE TS>
<TS version="2.1">
<context>
    <name>Main</name>
    <message>
        <source>Hello</source>
        <translation type="unfinished"></translation>
    </message>
    <message>
        <source>Bye</source>
        <translation>Tschüss</translation>
    </message>
</context>
</TS>
`

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
}

var upper = translate.TranslatorFunc(func(ctx context.Context, text, src, tgt string) (string, error) {
	return strings.ToUpper(text), nil
})

func defaultOpts() Options {
	return Options{Translate: roundtrip.Options{SourceLang: "en", TargetLang: "de", SkipTranslated: true}}
}

// ---------------------------------------------------------------------------
// Collect
// ---------------------------------------------------------------------------

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app10.ts"), oneMessage)
	writeFile(t, filepath.Join(dir, "app2.ts"), oneMessage)
	writeFile(t, filepath.Join(dir, "sub", "Extra.TS"), oneMessage)
	writeFile(t, filepath.Join(dir, "readme.txt"), "x")
	notes := filepath.Join(t.TempDir(), "notes.md")
	writeFile(t, notes, "x")
	missing := filepath.Join(dir, "gone.ts")

	files, ignored, err := Collect([]string{dir, notes, missing, filepath.Join(dir, "app2.ts")})
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	want := []string{
		filepath.Join(dir, "app2.ts"),
		filepath.Join(dir, "app10.ts"),
		filepath.Join(dir, "sub", "Extra.TS"),
		missing,
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{notes}, ignored); diff != "" {
		t.Fatalf("ignored mismatch (-want +got):\n%s", diff)
	}
}

func TestOutputPath(t *testing.T) {
	cases := []struct {
		in, dir, target, want string
	}{
		{"/src/app.ts", "", "zh", "/src/app_zh.ts"},
		{"/src/app.TS", "", "de", "/src/app_de.ts"},
		{"/src/app.ts", "/out", "zh", "/out/app.ts"},
	}
	for _, tc := range cases {
		got := OutputPath(filepath.FromSlash(tc.in), filepath.FromSlash(tc.dir), tc.target)
		if got != filepath.FromSlash(tc.want) {
			t.Fatalf("OutputPath(%q, %q, %q) = %q, want %q", tc.in, tc.dir, tc.target, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_MalformedFileDoesNotStopBatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.ts"), oneMessage)
	writeFile(t, filepath.Join(dir, "b.ts"), "<TS><context><name>broken</TS>")
	writeFile(t, filepath.Join(dir, "c.ts"), oneMessage)

	files, _, _ := Collect([]string{dir})
	rep := Run(context.Background(), files, upper, defaultOpts())

	if len(rep.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(rep.Results))
	}
	if rep.Succeeded() != 2 || rep.Failed() != 1 {
		t.Fatalf("succeeded=%d failed=%d, want 2/1", rep.Succeeded(), rep.Failed())
	}
	var pe *tsfile.ParseError
	if !errors.As(rep.Results[1].Err, &pe) {
		t.Fatalf("b.ts error = %v, want *tsfile.ParseError", rep.Results[1].Err)
	}

	want := roundtrip.Stats{Total: 4, Translated: 2, Skipped: 2}
	if diff := cmp.Diff(want, rep.Totals); diff != "" {
		t.Fatalf("totals mismatch (-want +got):\n%s", diff)
	}

	out, err := tsfile.ParseFile(filepath.Join(dir, "a_de.ts"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if got := out.Messages()[0].Translation; got != "HELLO" {
		t.Fatalf("translation = %q, want HELLO", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "b_de.ts")); !os.IsNotExist(err) {
		t.Fatal("output written for malformed input")
	}
}

func TestRun_OutputDir(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "nested", "out")
	writeFile(t, filepath.Join(src, "app.ts"), oneMessage)

	opts := defaultOpts()
	opts.OutputDir = out
	rep := Run(context.Background(), []string{filepath.Join(src, "app.ts")}, upper, opts)

	if !rep.Results[0].OK() {
		t.Fatalf("unexpected error: %v", rep.Results[0].Err)
	}
	if rep.Results[0].Output != filepath.Join(out, "app.ts") {
		t.Fatalf("Output = %q", rep.Results[0].Output)
	}
	if _, err := os.Stat(filepath.Join(out, "app.ts")); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestRun_MissingFile(t *testing.T) {
	rep := Run(context.Background(), []string{filepath.Join(t.TempDir(), "nope.ts")}, upper, defaultOpts())
	if rep.Results[0].OK() {
		t.Fatal("missing input should be a file-level error")
	}
	if rep.Totals.Total != 0 {
		t.Fatalf("totals = %+v, want zero", rep.Totals)
	}
}

func TestRun_Callbacks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.ts"), oneMessage)
	writeFile(t, filepath.Join(dir, "b.ts"), oneMessage)
	files, _, _ := Collect([]string{dir})

	var started []int
	var finished []string
	opts := defaultOpts()
	opts.OnFile = func(i, n int, path string) { started = append(started, i) }
	opts.OnResult = func(i, n int, r FileResult) { finished = append(finished, filepath.Base(r.Input)) }
	Run(context.Background(), files, upper, opts)

	if diff := cmp.Diff([]int{0, 1}, started); diff != "" {
		t.Fatalf("OnFile mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.ts", "b.ts"}, finished); diff != "" {
		t.Fatalf("OnResult mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.ts"), oneMessage)
	writeFile(t, filepath.Join(dir, "b.ts"), oneMessage)
	files, _, _ := Collect([]string{dir})

	ctx, cancel := context.WithCancel(context.Background())
	tr := translate.TranslatorFunc(func(c context.Context, text, src, tgt string) (string, error) {
		cancel()
		return "X", nil
	})
	rep := Run(ctx, files, tr, defaultOpts())

	if !errors.Is(rep.Results[0].Err, context.Canceled) {
		t.Fatalf("first file error = %v, want context.Canceled", rep.Results[0].Err)
	}
	if !errors.Is(rep.Results[1].Err, ErrNotProcessed) {
		t.Fatalf("second file error = %v, want ErrNotProcessed", rep.Results[1].Err)
	}
	if _, err := tsfile.ParseFile(filepath.Join(dir, "a_de.ts")); err != nil {
		t.Fatalf("partial output not readable: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

func TestWriteCSV(t *testing.T) {
	rep := Report{
		Results: []FileResult{
			{Input: "a.ts", Output: "a_zh.ts", Stats: roundtrip.Stats{Total: 3, Translated: 2, Skipped: 1}},
			{Input: "b.ts", Err: errors.New("parsing b.ts:1: boom")},
		},
		Totals: roundtrip.Stats{Total: 3, Translated: 2, Skipped: 1},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rep); err != nil {
		t.Fatalf("WriteCSV error: %v", err)
	}
	data := strings.TrimPrefix(buf.String(), utf8BOM)
	if len(data) == buf.Len() {
		t.Fatal("report lacks UTF-8 BOM")
	}

	rows, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parsing report: %v", err)
	}
	want := [][]string{
		{"file", "total", "translated", "skipped", "failed", "output", "status", "error"},
		{"a.ts", "3", "2", "1", "0", "a_zh.ts", "success", ""},
		{"b.ts", "0", "0", "0", "0", "", "failed", "parsing b.ts:1: boom"},
		{"TOTAL", "3", "2", "1", "0", "", "1/2 succeeded", ""},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultReportFile)
	if err := WriteCSVFile(path, Report{}); err != nil {
		t.Fatalf("WriteCSVFile error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("report not written: %v", err)
	}
}
