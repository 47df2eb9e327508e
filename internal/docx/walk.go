package docx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// MaxDepth bounds table nesting. Real templates are a few levels deep; the
// bound only stops a pathological document from recursing forever.
const MaxDepth = 64

// ErrTooDeep is returned when tables are nested deeper than MaxDepth.
var ErrTooDeep = errors.New("table nesting exceeds maximum depth")

// CellRef addresses one cell of one table inside its container.
type CellRef struct {
	Table  int
	Row    int
	Column int
}

// Location identifies where a paragraph sits in the package.
type Location struct {
	Part string
	// Cells is the chain of enclosing table cells, outermost first.
	Cells []CellRef
	// Paragraph is the index of the paragraph within its body or cell.
	Paragraph int
}

// String renders the location with 1-based indices, e.g.
// "word/document.xml table 1 > row 2 > cell 1 > paragraph 1".
func (l Location) String() string {
	var sb strings.Builder
	sb.WriteString(l.Part)
	for _, c := range l.Cells {
		fmt.Fprintf(&sb, " table %d > row %d > cell %d >", c.Table+1, c.Row+1, c.Column+1)
	}
	fmt.Fprintf(&sb, " paragraph %d", l.Paragraph+1)
	return strings.TrimSpace(sb.String())
}

// Depth returns the table nesting depth of the location.
func (l Location) Depth() int {
	return len(l.Cells)
}

// Walk calls fn for every paragraph reachable from root: direct paragraphs and
// paragraphs inside tables at any nesting depth. Rows are visited top to
// bottom, cells left to right, and a nested table is fully visited before the
// next cell. Block-level content controls and custom XML wrappers are
// transparent. Walk never modifies the tree itself.
func Walk(root *etree.Element, fn func(*Paragraph, Location)) error {
	return walkPart("", root, fn)
}

func walkPart(part string, root *etree.Element, fn func(*Paragraph, Location)) error {
	if root == nil {
		return nil
	}
	w := &walker{part: part, fn: fn}
	return w.container(root, nil)
}

type walker struct {
	part string
	fn   func(*Paragraph, Location)
}

type counters struct {
	paragraphs int
	tables     int
}

func (w *walker) container(el *etree.Element, path []CellRef) error {
	var n counters
	return w.blocks(el, path, &n)
}

func (w *walker) blocks(el *etree.Element, path []CellRef, n *counters) error {
	for _, c := range el.ChildElements() {
		switch {
		case isW(c, "p"):
			w.fn(&Paragraph{el: c}, Location{
				Part:      w.part,
				Cells:     append([]CellRef(nil), path...),
				Paragraph: n.paragraphs,
			})
			n.paragraphs++
		case isW(c, "tbl"):
			if err := w.table(c, path, n.tables); err != nil {
				return err
			}
			n.tables++
		case isW(c, "sdt"):
			for _, sc := range c.ChildElements() {
				if isW(sc, "sdtContent") {
					if err := w.blocks(sc, path, n); err != nil {
						return err
					}
				}
			}
		case isW(c, "customXml"):
			if err := w.blocks(c, path, n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) table(tbl *etree.Element, path []CellRef, index int) error {
	if len(path)+1 > MaxDepth {
		return ErrTooDeep
	}
	for r, row := range transparentChildren(tbl, "tr") {
		for c, cell := range transparentChildren(row, "tc") {
			ref := CellRef{Table: index, Row: r, Column: c}
			if err := w.container(cell, append(path[:len(path):len(path)], ref)); err != nil {
				return err
			}
		}
	}
	return nil
}

// transparentChildren returns the w:<tag> children of el, looking through
// content controls and custom XML wrappers.
func transparentChildren(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		switch {
		case isW(c, tag):
			out = append(out, c)
		case isW(c, "sdt"):
			for _, sc := range c.ChildElements() {
				if isW(sc, "sdtContent") {
					out = append(out, transparentChildren(sc, tag)...)
				}
			}
		case isW(c, "customXml"):
			out = append(out, transparentChildren(c, tag)...)
		}
	}
	return out
}
