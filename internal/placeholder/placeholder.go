// Package placeholder finds {{...}} markers in DOCX templates and writes
// resolved values back into them.
package placeholder

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pigcharles06/remote-course-system/internal/docx"
)

// Pattern matches one marker. It is non-greedy and spans newlines, so a marker
// broken by a soft line break is still one match.
var Pattern = regexp.MustCompile(`(?s)\{\{(.*?)\}\}`)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Values maps normalized keys to rendered text. An absent key is unresolved.
type Values map[string]string

// Normalize collapses every whitespace run inside a marker to a single space
// and trims the result. All lookups use normalized keys.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// Extract returns the sorted, deduplicated keys of every marker in the package.
// Markers without a closing "}}" are not markers and are ignored.
func Extract(pkg *docx.Package) ([]string, error) {
	seen := make(map[string]struct{})
	err := pkg.Walk(func(p *docx.Paragraph, _ docx.Location) {
		for _, key := range Keys(p.Text()) {
			seen[key] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Keys returns the normalized keys of the markers in text, in order of
// appearance. Markers with an empty key are skipped.
func Keys(text string) []string {
	if !strings.Contains(text, openDelim) {
		return nil
	}
	var keys []string
	for _, m := range Pattern.FindAllStringSubmatch(text, -1) {
		if key := Normalize(m[1]); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
