package placeholder

import (
	"github.com/pigcharles06/remote-course-system/internal/docx"
)

const contextRunes = 100

// Occurrence is one marker found in a document.
type Occurrence struct {
	Raw      string        `json:"raw"`
	Key      string        `json:"key"`
	Location docx.Location `json:"-"`
	Where    string        `json:"location"`
	Context  string        `json:"context"`
}

// Locate lists every marker with its position, in walk order. It is meant for
// diagnosing generated documents that still carry unresolved markers.
func Locate(pkg *docx.Package) ([]Occurrence, error) {
	var out []Occurrence
	err := pkg.Walk(func(p *docx.Paragraph, loc docx.Location) {
		text := p.Text()
		for _, m := range Pattern.FindAllStringSubmatch(text, -1) {
			out = append(out, Occurrence{
				Raw:      m[0],
				Key:      Normalize(m[1]),
				Location: loc,
				Where:    loc.String(),
				Context:  truncate(text, contextRunes),
			})
		}
	})
	return out, err
}

// Diff compares the keys of a template with the markers still present in a
// generated document.
type Diff struct {
	TemplateKeys []string `json:"template_keys"`
	// Unreplaced are keys still present in the generated document.
	Unreplaced []string `json:"unreplaced"`
	// Foreign are markers in the generated document the template never had,
	// usually text a provider returned that itself looks like a marker.
	Foreign []string `json:"foreign"`
}

// Compare reports which template keys survived generation.
func Compare(template, generated *docx.Package) (*Diff, error) {
	keys, err := Extract(template)
	if err != nil {
		return nil, err
	}
	left, err := Extract(generated)
	if err != nil {
		return nil, err
	}

	inTemplate := make(map[string]bool, len(keys))
	for _, k := range keys {
		inTemplate[k] = true
	}
	d := &Diff{TemplateKeys: keys, Unreplaced: []string{}, Foreign: []string{}}
	for _, k := range left {
		if inTemplate[k] {
			d.Unreplaced = append(d.Unreplaced, k)
		} else {
			d.Foreign = append(d.Foreign, k)
		}
	}
	return d, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
