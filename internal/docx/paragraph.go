package docx

import (
	"strings"

	"github.com/beevik/etree"
)

// inlineWrappers are paragraph-level elements whose runs still belong to the
// paragraph's visible text. w:del is absent: deleted runs are not text.
var inlineWrappers = map[string]bool{
	"hyperlink":  true,
	"smartTag":   true,
	"ins":        true,
	"customXml":  true,
	"fldSimple":  true,
	"sdt":        true,
	"sdtContent": true,
	"bdo":        true,
	"dir":        true,
}

// Paragraph wraps a w:p element.
type Paragraph struct {
	el *etree.Element
}

// NewParagraph wraps an existing w:p element.
func NewParagraph(el *etree.Element) *Paragraph {
	return &Paragraph{el: el}
}

// Element returns the underlying w:p element.
func (p *Paragraph) Element() *etree.Element {
	return p.el
}

// Runs returns the paragraph's runs in document order, including runs nested
// in hyperlinks, insertions, smart tags and inline content controls.
func (p *Paragraph) Runs() []*Run {
	var runs []*Run
	collectRuns(p.el, &runs)
	return runs
}

func collectRuns(el *etree.Element, runs *[]*Run) {
	for _, c := range el.ChildElements() {
		if isW(c, "r") {
			*runs = append(*runs, &Run{el: c})
			continue
		}
		if inlineWrappers[c.Tag] && (c.Space == "w" || c.NamespaceURI() == nsW) {
			collectRuns(c, runs)
		}
	}
}

// Text returns the concatenated text of all runs. A marker split across runs
// appears here in one piece.
func (p *Paragraph) Text() string {
	var sb strings.Builder
	for _, r := range p.Runs() {
		sb.WriteString(r.Text())
	}
	return sb.String()
}

// Run wraps a w:r element.
type Run struct {
	el *etree.Element
}

// Element returns the underlying w:r element.
func (r *Run) Element() *etree.Element {
	return r.el
}

// Text returns the run's visible text. Tabs map to '\t', text-wrapping breaks
// and carriage returns to '\n'; page and column breaks contribute nothing.
func (r *Run) Text() string {
	var sb strings.Builder
	for _, c := range r.el.ChildElements() {
		if c.Space != "w" && c.NamespaceURI() != nsW {
			continue
		}
		switch c.Tag {
		case "t":
			sb.WriteString(c.Text())
		case "tab":
			sb.WriteByte('\t')
		case "br":
			if isSoftBreak(c) {
				sb.WriteByte('\n')
			}
		case "cr":
			sb.WriteByte('\n')
		case "noBreakHyphen":
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

func isSoftBreak(br *etree.Element) bool {
	typ := ""
	for _, a := range br.Attr {
		if a.Key == "type" && (a.Space == "w" || a.NamespaceURI() == nsW) {
			typ = a.Value
			break
		}
	}
	return typ == "" || typ == "textWrapping"
}

func isTextContent(c *etree.Element) bool {
	if c.Space != "w" && c.NamespaceURI() != nsW {
		return false
	}
	switch c.Tag {
	case "t", "tab", "cr", "noBreakHyphen", "softHyphen":
		return true
	case "br":
		return isSoftBreak(c)
	}
	return false
}

// Clear removes the run's text content but keeps the run itself, its
// properties and any non-text children such as drawings or field characters.
func (r *Run) Clear() {
	for _, c := range r.el.ChildElements() {
		if isTextContent(c) {
			r.el.RemoveChild(c)
		}
	}
}

// SetText replaces the run's text. Each '\n' becomes a soft line break
// (w:br) inside the run and each '\t' a w:tab, so paragraph properties such as
// numbering or alignment are untouched. New elements take the run's own
// namespace prefix.
func (r *Run) SetText(s string) {
	at := len(r.el.Child)
	for _, c := range r.el.ChildElements() {
		if isTextContent(c) {
			at = c.Index()
			break
		}
	}
	r.Clear()
	if at > len(r.el.Child) {
		at = len(r.el.Child)
	}

	tag := func(local string) string {
		if r.el.Space == "" {
			return local
		}
		return r.el.Space + ":" + local
	}
	insert := func(el *etree.Element) {
		r.el.InsertChildAt(at, el)
		at++
	}

	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			insert(etree.NewElement(tag("br")))
		}
		for j, seg := range strings.Split(line, "\t") {
			if j > 0 {
				insert(etree.NewElement(tag("tab")))
			}
			if seg == "" {
				continue
			}
			t := etree.NewElement(tag("t"))
			if strings.TrimSpace(seg) != seg {
				t.CreateAttr("xml:space", "preserve")
			}
			t.SetText(seg)
			insert(t)
		}
	}
}
