package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pigcharles06/remote-course-system/internal/docx"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeText = "text/plain"
)

// Reference is a sample document used as formatting guidance.
type Reference struct {
	Path        string
	MIMEType    string
	DisplayName string
	// Text is the document's plain text when it could be extracted, for
	// providers that cannot read files.
	Text string
}

// LoadReference describes the file at path. DOCX samples also get their text
// extracted, with table cells on one line separated by " | ".
func LoadReference(path string) (*Reference, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("reference %s is a directory", path)
	}

	ref := &Reference{
		Path:        path,
		DisplayName: "sample_format" + strings.ToLower(filepath.Ext(path)),
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		ref.MIMEType = mimePDF
	case ".docx":
		ref.MIMEType = mimeDOCX
		pkg, err := docx.Open(path)
		if err != nil {
			return nil, fmt.Errorf("reading reference: %w", err)
		}
		if ref.Text, err = documentText(pkg); err != nil {
			return nil, fmt.Errorf("reading reference: %w", err)
		}
	case ".txt", ".md":
		ref.MIMEType = mimeText
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		ref.Text = string(data)
	default:
		return nil, fmt.Errorf("unsupported reference type: %s", filepath.Ext(path))
	}
	return ref, nil
}

func documentText(pkg *docx.Package) (string, error) {
	var lines []string
	var row []string
	var rowKey string
	flush := func() {
		if len(row) > 0 {
			lines = append(lines, strings.Join(row, " | "))
			row = nil
		}
	}

	err := pkg.Walk(func(p *docx.Paragraph, loc docx.Location) {
		text := strings.TrimSpace(p.Text())
		if loc.Depth() == 0 {
			flush()
			rowKey = ""
			if text != "" {
				lines = append(lines, text)
			}
			return
		}
		outer := loc.Cells[0]
		key := fmt.Sprintf("%s/%d/%d", loc.Part, outer.Table, outer.Row)
		if key != rowKey {
			flush()
			rowKey = key
		}
		if text != "" {
			row = append(row, text)
		}
	})
	flush()
	return strings.Join(lines, "\n"), err
}
