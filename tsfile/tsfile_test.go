package tsfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleTS = `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE TS>
<TS version="2.1" language="zh_CN" sourcelanguage="en">
<!-- generated by lupdate -->
<context>
    <name>MainWindow</name>
    <message>
        <location filename="../mainwindow.ui" line="14"/>
        <source>File</source>
        <translation type="unfinished"></translation>
    </message>
    <message>
        <source>Open &amp; Save</source>
        <comment>menu</comment>
        <translation>打开与保存</translation>
    </message>
</context>
<context>
    <name>Dialog</name>
    <message numerus="yes">
        <source>%n file(s)</source>
        <translation type="unfinished">
            <numerusform></numerusform>
        </translation>
    </message>
    <message>
        <source>Cancel</source>
    </message>
</context>
</TS>
`

// ---------------------------------------------------------------------------
// Parse tests
// ---------------------------------------------------------------------------

func TestParse_Structure(t *testing.T) {
	doc, err := Parse([]byte(sampleTS))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if doc.Version != "2.1" || doc.Language != "zh_CN" || doc.SourceLanguage != "en" {
		t.Fatalf("root attrs = %q %q %q", doc.Version, doc.Language, doc.SourceLanguage)
	}
	if len(doc.Contexts) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(doc.Contexts))
	}

	var sources []string
	for _, m := range doc.Messages() {
		sources = append(sources, m.Source)
	}
	want := []string{"File", "Open & Save", "%n file(s)", "Cancel"}
	if diff := cmp.Diff(want, sources); diff != "" {
		t.Fatalf("sources mismatch (-want +got):\n%s", diff)
	}

	msgs := doc.Messages()
	if !msgs[0].IsUnfinished() || msgs[0].IsTranslated() {
		t.Error("File should be unfinished")
	}
	if !msgs[1].IsTranslated() || msgs[1].Comment != "menu" {
		t.Errorf("Open & Save: translated=%v comment=%q", msgs[1].IsTranslated(), msgs[1].Comment)
	}
	if !msgs[2].Numerus || len(msgs[2].NumerusForms) != 1 {
		t.Errorf("numerus message: numerus=%v forms=%v", msgs[2].Numerus, msgs[2].NumerusForms)
	}
	if msgs[3].HasTranslation {
		t.Error("Cancel has no <translation> element")
	}
}

func TestIsTranslated(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want bool
	}{
		{"finished", Message{HasTranslation: true, Translation: "ok"}, true},
		{"empty", Message{HasTranslation: true}, false},
		{"absent", Message{}, false},
		{"unfinished with text", Message{HasTranslation: true, Translation: "ok", Type: TypeUnfinished}, false},
		{"vanished with text", Message{HasTranslation: true, Translation: "ok", Type: TypeVanished}, true},
		{"numerus complete", Message{HasTranslation: true, Numerus: true, NumerusForms: []string{"a", "b"}}, true},
		{"numerus partial", Message{HasTranslation: true, Numerus: true, NumerusForms: []string{"a", ""}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.msg.IsTranslated(); got != tc.want {
				t.Fatalf("IsTranslated() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"malformed":   `<TS><context></TS>`,
		"wrong root":  `<?xml version="1.0"?><resources/>`,
		"empty":       ``,
		"trailing":    `<TS></TS>junk`,
		"unclosed":    `<TS><context>`,
		"bad entity":  `<TS><context><name>&nope;</name></context></TS>`,
		"second root": `<TS></TS><TS></TS>`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error = %v, want *ParseError", err)
			}
		})
	}
}

func TestParse_NoRootSentinel(t *testing.T) {
	_, err := Parse([]byte(`<resources></resources>`))
	if !errors.Is(err, ErrNoRoot) {
		t.Fatalf("Parse() error = %v, want ErrNoRoot", err)
	}
}

func TestParseFile_SetsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ts")
	os.WriteFile(path, []byte("<TS><oops></TS>"), 0644)

	_, err := ParseFile(path)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("ParseFile() error = %v, want *ParseError", err)
	}
	if pe.Path != path {
		t.Fatalf("ParseError.Path = %q, want %q", pe.Path, path)
	}
	if !strings.Contains(pe.Error(), "bad.ts") {
		t.Fatalf("error %q does not name the file", pe.Error())
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	doc, err := Parse([]byte(`<?xml version="1.0"?><!DOCTYPE TS><TS version="2.1"/>`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(doc.Messages()) != 0 {
		t.Fatalf("expected no messages, got %d", len(doc.Messages()))
	}
}

// ---------------------------------------------------------------------------
// Marshal tests
// ---------------------------------------------------------------------------

func TestMarshal_UnchangedIsIdentical(t *testing.T) {
	doc, err := Parse([]byte(sampleTS))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if diff := cmp.Diff(sampleTS, string(doc.Marshal())); diff != "" {
		t.Fatalf("unchanged document differs (-want +got):\n%s", diff)
	}
}

func TestParse_ByteOrderMark(t *testing.T) {
	input := "\ufeff" + sampleTS
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(doc.Messages()) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(doc.Messages()))
	}
	if diff := cmp.Diff(input, string(doc.Marshal())); diff != "" {
		t.Fatalf("BOM document differs (-want +got):\n%s", diff)
	}
}

func TestMarshal_KeepsUntouchedBytes(t *testing.T) {
	input := "<?xml version='1.0' encoding='utf-8'?>\r\n" +
		"<!DOCTYPE TS>\r\n" +
		"<TS version='2.1' language='de'>\r\n" +
		"<context>\r\n" +
		"    <name>Main</name>\r\n" +
		"    <message>\r\n" +
		"        <source>Don&apos;t &quot;quit&quot;</source>\r\n" +
		"        <translation type=\"unfinished\"></translation>\r\n" +
		"    </message>\r\n" +
		"    <message>\r\n" +
		"        <source>It&apos;s <![CDATA[<b>]]></source>\r\n" +
		"        <translation>Es ist</translation>\r\n" +
		"    </message>\r\n" +
		"</context>\r\n" +
		"</TS>\r\n"
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := doc.Messages()[0].Source; got != `Don't "quit"` {
		t.Fatalf("Source = %q", got)
	}
	if diff := cmp.Diff(input, string(doc.Marshal())); diff != "" {
		t.Fatalf("unchanged document differs (-want +got):\n%s", diff)
	}

	doc.Messages()[0].SetTranslation(`Nicht "beenden"`)
	out := string(doc.Marshal())
	for _, want := range []string{
		"<source>Don&apos;t &quot;quit&quot;</source>\r\n        <translation>Nicht \"beenden\"</translation>\r\n",
		"<source>It&apos;s <![CDATA[<b>]]></source>",
		"<TS version='2.1' language='de'>\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestByteElements(t *testing.T) {
	input := `<?xml version="1.0" encoding="utf-8"?>
<TS version="2.1" language="de">
<context>
    <name>Term</name>
    <message>
        <source>Press<byte value="x9"/>Esc<byte value="x1b"/>now<byte value="7"/></source>
        <translation type="unfinished"></translation>
    </message>
</context>
</TS>
`
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	m := doc.Messages()[0]
	if want := "Press\tEsc\x1bnow\x07"; m.Source != want {
		t.Fatalf("Source = %q, want %q", m.Source, want)
	}

	m.SetTranslation("Drücke\x1bjetzt")
	out := string(doc.Marshal())
	if !strings.Contains(out, `<translation>Drücke<byte value="x1b"/>jetzt</translation>`) {
		t.Fatalf("control character not written as <byte>:\n%s", out)
	}
	back, err := Parse([]byte(out))
	if err != nil {
		t.Fatalf("re-parse error: %v", err)
	}
	if got := back.Messages()[0].Translation; got != "Drücke\x1bjetzt" {
		t.Fatalf("Translation = %q after round trip", got)
	}
}

func TestMarshal_PreservesUnknownContent(t *testing.T) {
	input := `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE TS>
<TS version="2.1" language="de" x-tool="custom">
<context encoding="UTF-8">
    <name>Main</name>
    <message id="m1" x-extra="1">
        <source>Hello</source>
        <oldsource>Hi</oldsource>
        <translatorcomment>check</translatorcomment>
        <translation type="unfinished"></translation>
        <userdata>keep me</userdata>
    </message>
</context>
</TS>
`
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	doc.Messages()[0].SetTranslation("Hallo")
	out := string(doc.Marshal())

	for _, want := range []string{
		`<!DOCTYPE TS>`,
		`<?xml version="1.0" encoding="utf-8"?>`,
		`<TS version="2.1" language="de" x-tool="custom">`,
		`<message id="m1" x-extra="1">`,
		`<oldsource>Hi</oldsource>`,
		`<translatorcomment>check</translatorcomment>`,
		`<userdata>keep me</userdata>`,
		`<translation>Hallo</translation>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "unfinished") {
		t.Errorf("unfinished marker not cleared:\n%s", out)
	}
}

func TestMarshal_CreatesTranslationElement(t *testing.T) {
	doc, _ := Parse([]byte(sampleTS))
	cancel := doc.Messages()[3]
	cancel.SetTranslation("取消")

	out := string(doc.Marshal())
	want := "        <source>Cancel</source>\n        <translation>取消</translation>\n"
	if !strings.Contains(out, want) {
		t.Fatalf("new translation not placed after source:\n%s", out)
	}
}

func TestMarshal_MarkUnfinishedCreatesElement(t *testing.T) {
	doc, _ := Parse([]byte(sampleTS))
	doc.Messages()[3].MarkUnfinished()

	out := string(doc.Marshal())
	if !strings.Contains(out, `<source>Cancel</source>`+"\n        "+`<translation type="unfinished"></translation>`) {
		t.Fatalf("unfinished translation element not created:\n%s", out)
	}
}

func TestMarshal_NumerusForms(t *testing.T) {
	doc, _ := Parse([]byte(sampleTS))
	m := doc.Messages()[2]
	m.NumerusForms = []string{"%n 个文件", "%n 个文件"}
	m.HasTranslation = true
	m.Type = ""

	back, err := Parse(doc.Marshal())
	if err != nil {
		t.Fatalf("re-parse error: %v", err)
	}
	got := back.Messages()[2]
	if diff := cmp.Diff([]string{"%n 个文件", "%n 个文件"}, got.NumerusForms); diff != "" {
		t.Fatalf("numerus forms mismatch (-want +got):\n%s", diff)
	}
	if !got.IsTranslated() {
		t.Fatal("numerus message should be translated after re-parse")
	}
}

func TestMarshal_Escaping(t *testing.T) {
	doc, _ := Parse([]byte(sampleTS))
	doc.Messages()[0].SetTranslation(`<b>"A" & B</b>`)

	back, err := Parse(doc.Marshal())
	if err != nil {
		t.Fatalf("re-parse error: %v", err)
	}
	if got := back.Messages()[0].Translation; got != `<b>"A" & B</b>` {
		t.Fatalf("Translation = %q after round trip", got)
	}
}

func TestMarshal_LanguageAttribute(t *testing.T) {
	doc, _ := Parse([]byte(sampleTS))
	doc.Language = "ja"
	out := string(doc.Marshal())
	if !strings.Contains(out, `<TS version="2.1" language="ja" sourcelanguage="en">`) {
		t.Fatalf("language attribute not updated in place:\n%s", out)
	}
}

// Round trip: re-parsing preserves the message count and every source text.
func TestRoundTrip_PreservesSources(t *testing.T) {
	doc, _ := Parse([]byte(sampleTS))
	before := doc.Messages()
	for _, m := range before {
		if !m.IsTranslated() {
			m.SetTranslation("X")
		}
	}

	back, err := Parse(doc.Marshal())
	if err != nil {
		t.Fatalf("re-parse error: %v", err)
	}
	after := back.Messages()
	if len(after) != len(before) {
		t.Fatalf("message count %d, want %d", len(after), len(before))
	}
	for i := range before {
		if after[i].Source != before[i].Source {
			t.Errorf("message %d source = %q, want %q", i, after[i].Source, before[i].Source)
		}
		if after[i].Translation != before[i].Translation {
			t.Errorf("message %d translation = %q, want %q", i, after[i].Translation, before[i].Translation)
		}
	}
}

func TestCounts(t *testing.T) {
	doc, _ := Parse([]byte(sampleTS))
	want := Counts{Total: 4, Finished: 1, Unfinished: 3, Empty: 3}
	if diff := cmp.Diff(want, doc.Counts()); diff != "" {
		t.Fatalf("Counts() mismatch (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// WriteFile tests
// ---------------------------------------------------------------------------

func TestWriteFile(t *testing.T) {
	doc, _ := Parse([]byte(sampleTS))
	path := filepath.Join(t.TempDir(), "out.ts")

	if err := doc.WriteFile(path); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != sampleTS {
		t.Fatal("written file differs from input")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestWriteFile_MissingDir(t *testing.T) {
	doc, _ := Parse([]byte(sampleTS))
	path := filepath.Join(t.TempDir(), "missing", "out.ts")

	err := doc.WriteFile(path)
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("WriteFile() error = %v, want *WriteError", err)
	}
	if we.Path != path {
		t.Fatalf("WriteError.Path = %q, want %q", we.Path, path)
	}
}
