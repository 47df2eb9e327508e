// Package docx reads and writes Word (DOCX) packages while keeping every XML part
// as a lossless element tree, so callers can rewrite paragraph text without
// disturbing any formatting the template carries.
package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/beevik/etree"
)

const (
	nsW = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

	mainPart         = "word/document.xml"
	contentTypesPart = "[Content_Types].xml"
)

// ErrNotDocx is returned when the input is not a readable DOCX container.
var ErrNotDocx = errors.New("not a valid DOCX package")

// Package is an opened DOCX file. Every call to Open or Read produces an
// independent copy; nothing is shared between packages.
type Package struct {
	files []*zip.File
	parts map[string]*Part
	order []*Part
}

// Part is a parsed, text-bearing XML part of the package (the main document,
// a header or a footer).
type Part struct {
	Name string
	doc  *etree.Document
}

// Root returns the root element of the part.
func (p *Part) Root() *etree.Element {
	return p.doc.Root()
}

// Body returns the element whose children are the part's block content:
// w:body for the main document, the root itself for headers and footers.
func (p *Part) Body() *etree.Element {
	root := p.doc.Root()
	if root == nil {
		return nil
	}
	if isW(root, "document") {
		for _, c := range root.ChildElements() {
			if isW(c, "body") {
				return c
			}
		}
		return nil
	}
	return root
}

// Open reads a DOCX file from disk.
func Open(filename string) (*Package, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return Read(data)
}

// Read parses a DOCX package held in memory.
func Read(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDocx, err)
	}

	pkg := &Package{
		files: zr.File,
		parts: make(map[string]*Part),
	}

	present := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		present[f.Name] = true
	}
	for _, name := range []string{contentTypesPart, mainPart} {
		if !present[name] {
			return nil, fmt.Errorf("%w: missing %s", ErrNotDocx, name)
		}
	}

	var headers, footers []*zip.File
	var main *zip.File
	for _, f := range zr.File {
		switch {
		case f.Name == mainPart:
			main = f
		case isPartOf(f.Name, "word/header*.xml"):
			headers = append(headers, f)
		case isPartOf(f.Name, "word/footer*.xml"):
			footers = append(footers, f)
		}
	}
	byName := func(files []*zip.File) {
		sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	}
	byName(headers)
	byName(footers)

	ordered := append([]*zip.File{main}, headers...)
	ordered = append(ordered, footers...)
	for _, f := range ordered {
		part, err := parsePart(f)
		if err != nil {
			return nil, err
		}
		pkg.parts[part.Name] = part
		pkg.order = append(pkg.order, part)
	}

	return pkg, nil
}

func isPartOf(name, pattern string) bool {
	ok, _ := path.Match(pattern, name)
	return ok
}

func parsePart(f *zip.File) (*Part, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.Name, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("parsing %s: no root element", f.Name)
	}
	return &Part{Name: f.Name, doc: doc}, nil
}

// Parts returns the text-bearing parts: the main document first, then
// headers, then footers, each group ordered by part name.
func (p *Package) Parts() []*Part {
	return p.order
}

// Part returns a parsed part by name, or nil.
func (p *Package) Part(name string) *Part {
	return p.parts[name]
}

// Main returns the word/document.xml part.
func (p *Package) Main() *Part {
	return p.parts[mainPart]
}

// Walk visits every paragraph of every text-bearing part. See Walk.
func (p *Package) Walk(fn func(*Paragraph, Location)) error {
	for _, part := range p.order {
		if err := walkPart(part.Name, part.Body(), fn); err != nil {
			return fmt.Errorf("walking %s: %w", part.Name, err)
		}
	}
	return nil
}

// Bytes serializes the package. Entries keep their original order; parts that
// were never parsed are copied through untouched.
func (p *Package) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo writes the package as a zip archive to w.
func (p *Package) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)

	for _, f := range p.files {
		part, parsed := p.parts[f.Name]
		if !parsed {
			if err := zw.Copy(f); err != nil {
				return cw.n, fmt.Errorf("copying %s: %w", f.Name, err)
			}
			continue
		}

		data, err := part.doc.WriteToBytes()
		if err != nil {
			return cw.n, fmt.Errorf("encoding %s: %w", f.Name, err)
		}

		method := f.Method
		if method != zip.Store {
			method = zip.Deflate
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   method,
			Modified: f.Modified,
		})
		if err != nil {
			return cw.n, fmt.Errorf("writing %s: %w", f.Name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return cw.n, fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("finalizing archive: %w", err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

// isW reports whether el is the WordprocessingML element with the given local name.
func isW(el *etree.Element, local string) bool {
	if el.Tag != local {
		return false
	}
	return el.Space == "w" || el.NamespaceURI() == nsW
}
