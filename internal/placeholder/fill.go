package placeholder

import (
	"strings"

	"github.com/pigcharles06/remote-course-system/internal/docx"
)

// rewrite is the outcome of planning one paragraph.
type rewrite int

const (
	unmodified rewrite = iota
	rewrittenSingleLine
	rewrittenMultiLine
)

func (r rewrite) String() string {
	switch r {
	case rewrittenSingleLine:
		return "rewritten-single-line"
	case rewrittenMultiLine:
		return "rewritten-multi-line"
	default:
		return "unmodified"
	}
}

// FillStats summarizes a fill pass.
type FillStats struct {
	Paragraphs int `json:"paragraphs"`
	Rewritten  int `json:"rewritten"`
	Multiline  int `json:"multiline"`
	Replaced   int `json:"replaced"`
	Unresolved int `json:"unresolved"`
}

// Fill substitutes values into every marker of the package. Paragraphs
// without markers are never touched. In a rewritten paragraph the first run
// carries the whole new text with its original formatting; the other runs are
// emptied but kept.
func Fill(pkg *docx.Package, values Values) (FillStats, error) {
	var stats FillStats
	err := pkg.Walk(func(p *docx.Paragraph, _ docx.Location) {
		stats.Paragraphs++
		switch fillParagraph(p, values, &stats) {
		case rewrittenSingleLine:
			stats.Rewritten++
		case rewrittenMultiLine:
			stats.Rewritten++
			stats.Multiline++
		}
	})
	return stats, err
}

func fillParagraph(p *docx.Paragraph, values Values, stats *FillStats) rewrite {
	runs := p.Runs()
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.Text())
	}
	text := sb.String()

	next, state := plan(text, values, stats)
	if state == unmodified || len(runs) == 0 {
		return unmodified
	}

	runs[0].SetText(next)
	for _, r := range runs[1:] {
		r.Clear()
	}
	return state
}

// plan computes the substituted text of a paragraph and which rewrite it needs.
func plan(text string, values Values, stats *FillStats) (string, rewrite) {
	if !strings.Contains(text, openDelim) {
		return text, unmodified
	}

	next := Substitute(text, values, stats)
	switch {
	case next == text:
		return text, unmodified
	case strings.Contains(next, "\n"):
		return next, rewrittenMultiLine
	default:
		return next, rewrittenSingleLine
	}
}

// Substitute replaces every marker in text whose normalized key has a value.
// Markers without a value are kept verbatim. stats may be nil.
func Substitute(text string, values Values, stats *FillStats) string {
	return Pattern.ReplaceAllStringFunc(text, func(marker string) string {
		key := Normalize(marker[len(openDelim) : len(marker)-len(closeDelim)])
		if value, ok := values[key]; ok && key != "" {
			if stats != nil {
				stats.Replaced++
			}
			return value
		}
		if stats != nil {
			stats.Unresolved++
		}
		return marker
	})
}
