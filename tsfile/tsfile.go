// Package tsfile implements reading and writing of Qt Linguist .ts translation files.
//
// A .ts file is decoded into two layers:
//   - a raw node tree holding every token of the input (XML declaration,
//     DOCTYPE, comments, unknown elements and attributes, whitespace) in
//     document order, and
//   - a typed view of <context> and <message> entries that callers read and
//     mutate.
//
// Marshal writes only the messages whose translation state changed back into
// the tree. Text nodes and start tags that were not modified are written from
// the bytes they were read from (entity references, quoting and line endings
// included); rewritten nodes are escaped afresh. A leading UTF-8 byte-order
// mark is kept.
//
// Qt's <byte value="x1b"/> escapes for characters XML cannot carry are
// decoded into the source and translation text, and written back the same
// way.
package tsfile

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Translation type attribute values recognised by Qt Linguist.
const (
	TypeUnfinished = "unfinished"
	TypeVanished   = "vanished"
	TypeObsolete   = "obsolete"
)

// ---------------------------------------------------------------------------
// Data model
// ---------------------------------------------------------------------------

// Document is a parsed .ts file rooted at a <TS> element.
type Document struct {
	// Version is the <TS version="…"> attribute.
	Version string
	// Language is the <TS language="…"> attribute (the translation language).
	Language string
	// SourceLanguage is the optional <TS sourcelanguage="…"> attribute.
	SourceLanguage string
	// Contexts in document order. Names are not necessarily unique.
	Contexts []*Context

	nodes []*node // top-level tokens: prolog, root element, trailing misc
	root  *node
	orig  rootState
	bom   bool
}

var utf8BOM = []byte("\ufeff")

type rootState struct {
	version, language, sourceLanguage string
}

// Context is a named group of messages, typically one per UI class.
type Context struct {
	Name     string
	Messages []*Message

	el *node
}

// Message is a single translatable entry.
type Message struct {
	// Source is the text as authored.
	Source string
	// Comment is the disambiguation <comment>, if any.
	Comment string
	// ExtraComment is the developer <extracomment>, if any.
	ExtraComment string
	// ID is the optional id="…" attribute.
	ID string

	// HasTranslation reports whether a <translation> element is present.
	HasTranslation bool
	// Translation is the translated text. For numerus messages it mirrors the
	// first numerus form.
	Translation string
	// Type is the type="…" attribute of <translation>: "", unfinished,
	// vanished or obsolete.
	Type string

	// Numerus is set for messages with numerus="yes".
	Numerus bool
	// NumerusForms holds the <numerusform> texts of a numerus message.
	NumerusForms []string

	el   *node
	orig msgState
}

type msgState struct {
	has         bool
	translation string
	typ         string
	forms       []string
}

// IsUnfinished reports whether the translation carries type="unfinished".
func (m *Message) IsUnfinished() bool { return m.Type == TypeUnfinished }

// IsTranslated reports whether the message already carries a finished
// translation: the text is non-empty and the type is not "unfinished".
// Numerus messages need every form to be non-empty.
func (m *Message) IsTranslated() bool {
	if !m.HasTranslation || m.IsUnfinished() {
		return false
	}
	if m.Numerus {
		if len(m.NumerusForms) == 0 {
			return false
		}
		for _, f := range m.NumerusForms {
			if f == "" {
				return false
			}
		}
		return true
	}
	return m.Translation != ""
}

// SetTranslation stores text as the translation and clears the unfinished
// marker. Other markers (vanished, obsolete) are kept. Numerus messages get
// text in every form.
func (m *Message) SetTranslation(text string) {
	m.HasTranslation = true
	m.Translation = text
	if m.Numerus {
		n := len(m.NumerusForms)
		if n == 0 {
			n = 1
		}
		forms := make([]string, n)
		for i := range forms {
			forms[i] = text
		}
		m.NumerusForms = forms
	}
	if m.Type == TypeUnfinished {
		m.Type = ""
	}
}

// MarkUnfinished flags the translation as not yet done, creating an empty
// <translation> element if the message had none. The text is left as is and
// vanished/obsolete markers are not overridden.
func (m *Message) MarkUnfinished() {
	m.HasTranslation = true
	if m.Type == "" {
		m.Type = TypeUnfinished
	}
}

func (m *Message) snapshot() {
	m.orig = msgState{
		has:         m.HasTranslation,
		translation: m.Translation,
		typ:         m.Type,
		forms:       append([]string(nil), m.NumerusForms...),
	}
}

func (m *Message) changed() bool {
	o := m.orig
	if o.has != m.HasTranslation || o.typ != m.Type {
		return true
	}
	if m.Numerus {
		if len(o.forms) != len(m.NumerusForms) {
			return true
		}
		for i := range o.forms {
			if o.forms[i] != m.NumerusForms[i] {
				return true
			}
		}
		return false
	}
	return o.translation != m.Translation
}

// Messages returns every message of every context in document order.
func (d *Document) Messages() []*Message {
	var all []*Message
	for _, c := range d.Contexts {
		all = append(all, c.Messages...)
	}
	return all
}

// Counts summarises the translation state of a document.
type Counts struct {
	Total      int
	Finished   int
	Unfinished int
	Empty      int
	Vanished   int
}

// Counts returns per-state message counts. Empty counts messages without any
// translation text; Vanished covers vanished and obsolete entries.
func (d *Document) Counts() Counts {
	var c Counts
	for _, m := range d.Messages() {
		c.Total++
		switch {
		case m.Type == TypeVanished || m.Type == TypeObsolete:
			c.Vanished++
		case m.IsTranslated():
			c.Finished++
		default:
			c.Unfinished++
		}
		if !m.hasText() {
			c.Empty++
		}
	}
	return c
}

func (m *Message) hasText() bool {
	if m.Numerus {
		for _, f := range m.NumerusForms {
			if f != "" {
				return true
			}
		}
		return false
	}
	return m.Translation != ""
}

// ---------------------------------------------------------------------------
// Raw node tree
// ---------------------------------------------------------------------------

type nodeKind int

const (
	kindElement nodeKind = iota
	kindText
	kindComment
	kindProcInst
	kindDirective
)

type node struct {
	kind      nodeKind
	name      string     // element name (prefix included) or procinst target
	attrs     []xml.Attr // element attributes in source order
	children  []*node
	text      string // text, comment or directive content; procinst body
	selfClose bool   // element was written as <name/>
	raw       string // input bytes of a text node or start tag; "" once modified
}

func (n *node) attr(name string) string {
	for _, a := range n.attrs {
		if qualified(a.Name) == name {
			return a.Value
		}
	}
	return ""
}

// setAttr updates an attribute in place, appends it when missing, and
// removes it when value is empty.
func (n *node) setAttr(name, value string) {
	for i, a := range n.attrs {
		if qualified(a.Name) != name {
			continue
		}
		if a.Value == value {
			return
		}
		n.raw = ""
		if value == "" {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
		} else {
			n.attrs[i].Value = value
		}
		return
	}
	if value != "" {
		n.raw = ""
		n.attrs = append(n.attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
	}
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.kind == kindElement && c.name == name {
			return c
		}
	}
	return nil
}

func (n *node) elements(name string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.kind == kindElement && c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (n *node) innerText() string {
	var b strings.Builder
	for _, c := range n.children {
		switch c.kind {
		case kindText:
			b.WriteString(c.text)
		case kindElement:
			if c.name == "byte" {
				b.WriteString(byteValue(c.attr("value")))
			} else {
				b.WriteString(c.innerText())
			}
		}
	}
	return b.String()
}

// byteValue decodes the value of a <byte> element: "x1b" is hex, "27"
// decimal.
func byteValue(v string) string {
	var r uint64
	var err error
	if hex, ok := strings.CutPrefix(v, "x"); ok {
		r, err = strconv.ParseUint(hex, 16, 32)
	} else {
		r, err = strconv.ParseUint(v, 10, 32)
	}
	if err != nil {
		return ""
	}
	return string(rune(r))
}

// needsByte reports whether r is a control character that XML 1.0 text
// cannot hold.
func needsByte(r rune) bool {
	return r < 0x20 && r != '\t' && r != '\n' && r != '\r'
}

// setText replaces the children of n with s, writing characters XML cannot
// carry as <byte> elements.
func (n *node) setText(s string) {
	n.children = nil
	start := 0
	for i, r := range s {
		if !needsByte(r) {
			continue
		}
		if i > start {
			n.children = append(n.children, &node{kind: kindText, text: s[start:i]})
		}
		n.children = append(n.children, &node{
			kind:      kindElement,
			name:      "byte",
			attrs:     []xml.Attr{{Name: xml.Name{Local: "value"}, Value: "x" + strconv.FormatInt(int64(r), 16)}},
			selfClose: true,
		})
		start = i + utf8.RuneLen(r)
	}
	if start < len(s) {
		n.children = append(n.children, &node{kind: kindText, text: s[start:]})
	}
}

// insertElement appends el after the last element child of n, repeating the
// whitespace that precedes that child so the new element lines up with its
// siblings.
func (n *node) insertElement(el *node) {
	last := -1
	for i, c := range n.children {
		if c.kind == kindElement {
			last = i
		}
	}
	if last < 0 {
		n.children = append(n.children, el)
		return
	}
	var insert []*node
	if last > 0 && n.children[last-1].kind == kindText && strings.TrimSpace(n.children[last-1].text) == "" {
		ws := n.children[last-1]
		insert = append(insert, &node{kind: kindText, text: ws.text, raw: ws.raw})
	}
	insert = append(insert, el)
	rest := append([]*node(nil), n.children[last+1:]...)
	n.children = append(append(n.children[:last+1], insert...), rest...)
}

// removeElement drops el and the indentation in front of it.
func (n *node) removeElement(el *node) {
	for i, c := range n.children {
		if c != el {
			continue
		}
		start := i
		if i > 0 && n.children[i-1].kind == kindText && strings.TrimSpace(n.children[i-1].text) == "" {
			start = i - 1
		}
		n.children = append(n.children[:start], n.children[i+1:]...)
		return
	}
}

func qualified(name xml.Name) string {
	if name.Space != "" {
		return name.Space + ":" + name.Local
	}
	return name.Local
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseFile reads and parses a .ts file. Syntax problems are reported as a
// *ParseError carrying the path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = path
		}
		return nil, err
	}
	return doc, nil
}

// Parse parses .ts data. It fails with a *ParseError when the input is not
// well-formed XML or its root element is not <TS>.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if bytes.HasPrefix(data, utf8BOM) {
		doc.bom = true
		data = data[len(utf8BOM):]
	}
	dec := xml.NewDecoder(bytes.NewReader(data))

	var stack []*node
	add := func(n *node) {
		if len(stack) == 0 {
			doc.nodes = append(doc.nodes, n)
			return
		}
		top := stack[len(stack)-1]
		top.children = append(top.children, n)
	}
	fail := func(msg string) error {
		return &ParseError{Line: lineAt(data, dec.InputOffset()), Err: fmt.Errorf("%s", msg)}
	}

	for {
		// RawToken keeps namespace prefixes as written; element nesting is
		// checked against the stack below.
		start := dec.InputOffset()
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newParseError(err)
		}
		raw := string(data[start:dec.InputOffset()])

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{kind: kindElement, name: qualified(t.Name), attrs: copyAttrs(t.Attr), raw: raw}
			if off := dec.InputOffset(); off >= 2 && data[off-2] == '/' && data[off-1] == '>' {
				n.selfClose = true
			}
			if len(stack) == 0 {
				if doc.root != nil {
					return nil, fail(fmt.Sprintf("unexpected second root element <%s>", n.name))
				}
				doc.root = n
			}
			add(n)
			stack = append(stack, n)

		case xml.EndElement:
			name := qualified(t.Name)
			if len(stack) == 0 {
				return nil, fail(fmt.Sprintf("unexpected end element </%s>", name))
			}
			if top := stack[len(stack)-1]; top.name != name {
				return nil, fail(fmt.Sprintf("element <%s> closed by </%s>", top.name, name))
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) == 0 && len(bytes.TrimSpace(t)) > 0 {
				return nil, fail("text outside the root element")
			}
			add(&node{kind: kindText, text: string(t), raw: raw})

		case xml.Comment:
			add(&node{kind: kindComment, text: string(t)})

		case xml.ProcInst:
			add(&node{kind: kindProcInst, name: t.Target, text: string(t.Inst)})

		case xml.Directive:
			add(&node{kind: kindDirective, text: string(t)})
		}
	}

	if len(stack) > 0 {
		return nil, fail(fmt.Sprintf("unclosed element <%s>", stack[len(stack)-1].name))
	}
	if doc.root == nil {
		return nil, &ParseError{Err: ErrNoRoot}
	}
	if doc.root.name != "TS" {
		return nil, &ParseError{Err: fmt.Errorf("%w: root element is <%s>", ErrNoRoot, doc.root.name)}
	}

	doc.build()
	return doc, nil
}

func copyAttrs(attrs []xml.Attr) []xml.Attr {
	if len(attrs) == 0 {
		return nil
	}
	return append([]xml.Attr(nil), attrs...)
}

func lineAt(data []byte, off int64) int {
	if off > int64(len(data)) {
		off = int64(len(data))
	}
	return bytes.Count(data[:off], []byte{'\n'}) + 1
}

// build populates the typed view from the raw tree.
func (d *Document) build() {
	d.Version = d.root.attr("version")
	d.Language = d.root.attr("language")
	d.SourceLanguage = d.root.attr("sourcelanguage")
	d.orig = rootState{d.Version, d.Language, d.SourceLanguage}

	for _, el := range d.root.elements("context") {
		ctx := &Context{el: el}
		for _, c := range el.children {
			if c.kind != kindElement {
				continue
			}
			switch c.name {
			case "name":
				ctx.Name = c.innerText()
			case "message":
				ctx.Messages = append(ctx.Messages, parseMessage(c))
			}
		}
		d.Contexts = append(d.Contexts, ctx)
	}
}

func parseMessage(el *node) *Message {
	m := &Message{
		el:      el,
		ID:      el.attr("id"),
		Numerus: el.attr("numerus") == "yes",
	}
	for _, c := range el.children {
		if c.kind != kindElement {
			continue
		}
		switch c.name {
		case "source":
			m.Source = c.innerText()
		case "comment":
			m.Comment = c.innerText()
		case "extracomment":
			m.ExtraComment = c.innerText()
		case "translation":
			m.HasTranslation = true
			m.Type = c.attr("type")
			if m.Numerus {
				for _, f := range c.elements("numerusform") {
					m.NumerusForms = append(m.NumerusForms, f.innerText())
				}
				if len(m.NumerusForms) > 0 {
					m.Translation = m.NumerusForms[0]
				}
			} else {
				m.Translation = c.innerText()
			}
		}
	}
	m.snapshot()
	return m
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// sync pushes changes from the typed view into the raw tree.
func (d *Document) sync() {
	if d.Version != d.orig.version {
		d.root.setAttr("version", d.Version)
	}
	if d.Language != d.orig.language {
		d.root.setAttr("language", d.Language)
	}
	if d.SourceLanguage != d.orig.sourceLanguage {
		d.root.setAttr("sourcelanguage", d.SourceLanguage)
	}
	d.orig = rootState{d.Version, d.Language, d.SourceLanguage}

	for _, c := range d.Contexts {
		for _, m := range c.Messages {
			m.sync()
		}
	}
}

func (m *Message) sync() {
	if !m.changed() {
		return
	}
	defer m.snapshot()

	tn := m.el.child("translation")
	if !m.HasTranslation {
		if tn != nil {
			m.el.removeElement(tn)
		}
		return
	}
	if tn == nil {
		tn = &node{kind: kindElement, name: "translation"}
		m.el.insertElement(tn)
	}
	tn.setAttr("type", m.Type)

	if !m.Numerus {
		tn.setText(m.Translation)
		return
	}
	forms := tn.elements("numerusform")
	for i, text := range m.NumerusForms {
		if i < len(forms) {
			forms[i].setText(text)
			continue
		}
		f := &node{kind: kindElement, name: "numerusform"}
		f.setText(text)
		tn.insertElement(f)
	}
	for i := len(m.NumerusForms); i < len(forms); i++ {
		tn.removeElement(forms[i])
	}
}

// Marshal serializes the document, applying pending message changes.
func (d *Document) Marshal() []byte {
	d.sync()
	var b bytes.Buffer
	if d.bom {
		b.Write(utf8BOM)
	}
	for _, n := range d.nodes {
		writeNode(&b, n)
	}
	return b.Bytes()
}

func writeNode(b *bytes.Buffer, n *node) {
	switch n.kind {
	case kindText:
		if n.raw != "" {
			b.WriteString(n.raw)
			return
		}
		b.WriteString(escapeText(n.text))
	case kindComment:
		b.WriteString("<!--")
		b.WriteString(n.text)
		b.WriteString("-->")
	case kindProcInst:
		b.WriteString("<?")
		b.WriteString(n.name)
		if n.text != "" {
			b.WriteByte(' ')
			b.WriteString(n.text)
		}
		b.WriteString("?>")
	case kindDirective:
		b.WriteString("<!")
		b.WriteString(n.text)
		b.WriteString(">")
	case kindElement:
		if n.selfClose && len(n.children) == 0 {
			if n.raw != "" {
				b.WriteString(n.raw)
			} else {
				writeStartTag(b, n)
				b.WriteString("/>")
			}
			return
		}
		if n.raw != "" && !n.selfClose {
			b.WriteString(n.raw)
		} else {
			writeStartTag(b, n)
			b.WriteByte('>')
		}
		for _, c := range n.children {
			writeNode(b, c)
		}
		b.WriteString("</")
		b.WriteString(n.name)
		b.WriteByte('>')
	}
}

func writeStartTag(b *bytes.Buffer, n *node) {
	b.WriteByte('<')
	b.WriteString(n.name)
	for _, a := range n.attrs {
		b.WriteByte(' ')
		b.WriteString(qualified(a.Name))
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a.Value))
		b.WriteByte('"')
	}
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\n", "&#xA;", "\r", "&#xD;", "\t", "&#x9;")
)

func escapeText(s string) string { return textEscaper.Replace(s) }

func escapeAttr(s string) string { return attrEscaper.Replace(s) }

// WriteFile writes the document to path atomically: the data goes to a
// temporary file in the same directory which is then renamed over path.
// The parent directory must exist. Failures are reported as *WriteError.
func (d *Document) WriteFile(path string) error {
	data := d.Marshal()
	if err := writeAtomic(path, data, 0644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}
